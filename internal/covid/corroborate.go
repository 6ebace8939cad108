package covid

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/finextract/internal/financials"
	"github.com/sells-group/finextract/internal/model"
	"github.com/sells-group/finextract/pkg/ppp"
)

// minCorroborationScore excludes weak fuzzy matches from the public loan data.
const minCorroborationScore = 0.8

// LoanFinder looks up PPP loans by borrower.
type LoanFinder interface {
	FindLoans(ctx context.Context, name, state, city string) ([]ppp.LoanMatch, error)
}

// Corroborate checks public PPP loan records for the filer when the return
// reports no forgiveness. A matching forgiven loan approved in the tax year or
// the year before yields a review warning; amounts are never applied
// automatically because forgiveness timing varies by filer.
func Corroborate(ctx context.Context, finder LoanFinder, info model.CompanyInfo, summary *model.CovidSummary) error {
	if finder == nil || summary == nil || !summary.IsCovidRelevantYear {
		return nil
	}
	if summary.Adjustments.PPPLoanForgiveness > 0 || info.BusinessName == "" || info.State == "" {
		return nil
	}

	matches, err := finder.FindLoans(ctx, info.BusinessName, info.State, info.City)
	if err != nil {
		return eris.Wrap(err, "covid: ppp lookup")
	}

	for _, m := range matches {
		if m.MatchScore < minCorroborationScore || m.ForgivenessAmount <= 0 {
			continue
		}
		approved := m.DateApproved.Year()
		if approved != summary.TaxYear && approved+1 != summary.TaxYear {
			continue
		}
		zap.L().Info("covid: ppp loan record found without reported forgiveness",
			zap.String("borrower", m.BorrowerName),
			zap.Int64("loan_number", m.LoanNumber),
			zap.Int("tax_year", summary.TaxYear),
		)
		summary.Warnings = append(summary.Warnings, fmt.Sprintf(
			"PPP loan records show %s forgiven for %s (approved %d); confirm whether it was recognized as income in %d",
			financials.FormatUSD(m.ForgivenessAmount), m.BorrowerName, approved, summary.TaxYear))
		return nil
	}
	return nil
}
