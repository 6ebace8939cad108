// Package ppp looks up Paycheck Protection Program loan records in a copy of
// the SBA public loan data so reported forgiveness can be checked against it.
package ppp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/finextract/internal/db"
)

// Match tiers, strongest first.
const (
	TierExact      = 1
	TierNormalized = 2
	TierFuzzy      = 3
)

const (
	defaultTable         = "ppp_loans"
	defaultMinSimilarity = 0.4
	defaultMaxCandidates = 10
	cityBonus            = 0.05
)

// Config configures the loan lookup.
type Config struct {
	URL           string  `mapstructure:"url"`
	Table         string  `mapstructure:"table"`
	MinSimilarity float64 `mapstructure:"min_similarity"`
	MaxCandidates int     `mapstructure:"max_candidates"`
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = defaultMinSimilarity
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = defaultMaxCandidates
	}
	return c
}

// LoanMatch is a loan record matched to a borrower name.
type LoanMatch struct {
	LoanNumber        int64      `json:"loan_number"`
	BorrowerName      string     `json:"borrower_name"`
	BorrowerCity      string     `json:"borrower_city"`
	BorrowerState     string     `json:"borrower_state"`
	ApprovalAmount    float64    `json:"approval_amount"`
	ForgivenessAmount float64    `json:"forgiveness_amount"`
	DateApproved      time.Time  `json:"date_approved"`
	ForgivenessDate   *time.Time `json:"forgiveness_date,omitempty"`
	LoanStatus        string     `json:"loan_status"`
	MatchTier         int        `json:"match_tier"`
	MatchScore        float64    `json:"match_score"`
}

// Pool is the subset of pgxpool.Pool the client needs.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// Client queries the loan table.
type Client struct {
	pool     Pool
	owned    bool
	cfg      Config
	exactSQL string
	fuzzySQL string
}

// New connects to the loan database at cfg.URL. The client owns the pool.
func New(ctx context.Context, cfg Config) (*Client, error) {
	p, err := db.Connect(ctx, cfg.URL, &db.PoolConfig{MaxConns: 4})
	if err != nil {
		return nil, eris.Wrap(err, "ppp: connect")
	}
	c := NewFromPool(p, cfg)
	c.owned = true
	return c, nil
}

// NewFromPool builds a client on a pool shared with other components.
// Close leaves a shared pool open.
func NewFromPool(p Pool, cfg Config) *Client {
	cfg = cfg.withDefaults()
	table := pgx.Identifier(strings.Split(cfg.Table, ".")).Sanitize()
	return &Client{
		pool:     p,
		cfg:      cfg,
		exactSQL: fmt.Sprintf(exactSQL, table),
		fuzzySQL: fmt.Sprintf(fuzzySQL, table),
	}
}

// Close releases the pool when the client owns it.
func (c *Client) Close() {
	if c.owned {
		c.pool.Close()
	}
}

const loanColumns = `loannumber, borrowername, borrowercity, borrowerstate,
       currentapprovalamount, forgivenessamount, dateapproved, forgivenessdate, loanstatus`

const exactSQL = `
SELECT ` + loanColumns + `
FROM %s
WHERE borrowerstate = $1 AND UPPER(TRIM(borrowername)) LIKE $2
ORDER BY currentapprovalamount DESC`

const fuzzySQL = `
SELECT ` + loanColumns + `,
       similarity(UPPER(borrowername), $2) AS sim_score
FROM %s
WHERE borrowerstate = $1 AND similarity(UPPER(borrowername), $2) >= $3
ORDER BY sim_score DESC
LIMIT $4`

// FindLoans returns loans for a borrower in a state. A prefix query on the
// normalized name is tried first and its rows are kept only when they
// normalize to the same name; trigram similarity is the fallback. A matching
// city adds a small bonus to fuzzy scores.
func (c *Client) FindLoans(ctx context.Context, name, state, city string) ([]LoanMatch, error) {
	norm := Normalize(name)
	if norm == "" || state == "" {
		return nil, nil
	}
	state = strings.ToUpper(strings.TrimSpace(state))
	upper := strings.ToUpper(strings.Join(strings.Fields(name), " "))

	rows, err := c.pool.Query(ctx, c.exactSQL, state, norm+"%")
	if err != nil {
		return nil, eris.Wrap(err, "ppp: exact query")
	}
	candidates, err := scanLoans(rows, false)
	if err != nil {
		return nil, err
	}

	var matches []LoanMatch
	for _, m := range candidates {
		switch {
		case strings.ToUpper(strings.TrimSpace(m.BorrowerName)) == upper:
			m.MatchTier, m.MatchScore = TierExact, 1.0
		case Normalize(m.BorrowerName) == norm:
			m.MatchTier, m.MatchScore = TierNormalized, 0.9
		default:
			continue
		}
		matches = append(matches, m)
	}
	if len(matches) > 0 {
		return matches, nil
	}

	rows, err = c.pool.Query(ctx, c.fuzzySQL, state, upper, c.cfg.MinSimilarity, c.cfg.MaxCandidates)
	if err != nil {
		return nil, eris.Wrap(err, "ppp: fuzzy query")
	}
	matches, err = scanLoans(rows, true)
	if err != nil {
		return nil, err
	}
	for i := range matches {
		matches[i].MatchTier = TierFuzzy
		if city != "" && strings.EqualFold(strings.TrimSpace(matches[i].BorrowerCity), strings.TrimSpace(city)) {
			matches[i].MatchScore = min(matches[i].MatchScore+cityBonus, 0.99)
		}
	}
	return matches, nil
}

func scanLoans(rows pgx.Rows, withScore bool) ([]LoanMatch, error) {
	defer rows.Close()

	var out []LoanMatch
	for rows.Next() {
		var (
			m        LoanMatch
			forgiven *time.Time
			score    float64
		)
		dest := []any{
			&m.LoanNumber, &m.BorrowerName, &m.BorrowerCity, &m.BorrowerState,
			&m.ApprovalAmount, &m.ForgivenessAmount, &m.DateApproved, &forgiven, &m.LoanStatus,
		}
		if withScore {
			dest = append(dest, &score)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrap(err, "ppp: scan row")
		}
		m.ForgivenessDate = forgiven
		m.MatchScore = score
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "ppp: rows iteration")
	}
	return out, nil
}
