// Package mapper turns Stage 1 extractions into StructuredFinancialData.
package mapper

import (
	"context"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/finextract/internal/classify"
	"github.com/sells-group/finextract/internal/financials"
	"github.com/sells-group/finextract/internal/model"
	"github.com/sells-group/finextract/internal/textnorm"
)

// Mapper converts a classified extraction into structured financial data.
type Mapper interface {
	Map(ctx context.Context, in *model.Stage1Output, cls model.DocumentClassification) (model.StructuredFinancialData, error)
}

// RuleMapper maps fields with line-label patterns over the raw text, then
// fills remaining gaps from labeled table rows.
type RuleMapper struct{}

// NewRuleMapper returns a RuleMapper.
func NewRuleMapper() *RuleMapper {
	return &RuleMapper{}
}

// Map implements Mapper. It never fails on content; fields it cannot find
// stay zero.
func (m *RuleMapper) Map(ctx context.Context, in *model.Stage1Output, cls model.DocumentClassification) (model.StructuredFinancialData, error) {
	if err := ctx.Err(); err != nil {
		return model.StructuredFinancialData{}, err
	}

	data := model.StructuredFinancialData{
		DocumentType: cls.DocumentType,
		TaxYear:      cls.TaxYear,
		RedFlags:     []model.RedFlag{},
	}
	if in == nil {
		return data, nil
	}
	data.DocumentID = in.DocumentID

	text := textnorm.Clean(in.RawText)
	found := mapText(&data, text)
	filled := mapTables(&data, in.Tables)

	data.CompanyInfo = extractCompanyInfo(text, cls)
	deriveOwnerInfo(&data)
	pruneEmpty(&data)
	data.RedFlags = redFlags(&data)

	zap.L().Debug("mapper: document mapped",
		zap.String("document_id", in.DocumentID),
		zap.Int("text_fields", found),
		zap.Int("table_fields", filled),
		zap.Int("red_flags", len(data.RedFlags)),
	)
	return data, nil
}

// mapText applies every rule's text patterns and returns the number of
// fields set.
func mapText(data *model.StructuredFinancialData, text string) int {
	found := 0
	for _, rule := range fieldRules {
		if v, ok := matchText(rule, text); ok {
			*rule.field(data) = v
			found++
		}
	}
	return found
}

// matchText returns the first positive amount found by rule's patterns,
// skipping matches on lines the rule excludes.
func matchText(rule fieldRule, text string) (float64, bool) {
	for _, re := range rule.text {
		if len(rule.skipLines) == 0 {
			match := re.FindStringSubmatch(text)
			if match == nil {
				continue
			}
			if v, ok := parseValue(match[1], rule.signed); ok && v != 0 {
				return v, true
			}
			continue
		}
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			if containsAny(strings.ToLower(lineAt(text, loc[0])), rule.skipLines) {
				continue
			}
			if v, ok := parseValue(text[loc[2]:loc[3]], rule.signed); ok && v != 0 {
				return v, true
			}
			break
		}
	}
	return 0, false
}

// lineAt returns the line of text containing offset i.
func lineAt(text string, i int) string {
	start := strings.LastIndexByte(text[:i], '\n') + 1
	end := strings.IndexByte(text[i:], '\n')
	if end < 0 {
		return text[start:]
	}
	return text[start : i+end]
}

// mapTables fills fields still at zero from table rows whose first non-empty
// cell names a known line. The value is the last numeric cell in the row.
func mapTables(data *model.StructuredFinancialData, tables []model.Table) int {
	filled := 0
	for _, t := range tables {
		for _, row := range t.Rows {
			if len(row) < 2 {
				continue
			}
			label := rowLabel(row)
			if label == "" {
				continue
			}
			rule := ruleForLabel(label)
			if rule == nil {
				continue
			}
			ptr := rule.field(data)
			if *ptr != 0 {
				continue
			}
			if v, ok := rowValue(row, rule.signed); ok {
				*ptr = v
				filled++
			}
		}
	}
	return filled
}

func rowLabel(row []string) string {
	for _, cell := range row {
		if c := strings.TrimSpace(cell); c != "" {
			return " " + strings.ToLower(textnorm.Clean(c))
		}
	}
	return ""
}

// ruleForLabel returns the first rule with a label starting a word in label.
func ruleForLabel(label string) *fieldRule {
	for i := range fieldRules {
		rule := &fieldRules[i]
		if containsAny(label, rule.exclude) {
			continue
		}
		for _, l := range rule.labels {
			if strings.Contains(label, " "+l) {
				return rule
			}
		}
	}
	return nil
}

func rowValue(row []string, signed bool) (float64, bool) {
	for i := len(row) - 1; i >= 1; i-- {
		v, ok := parseValue(row[i], signed)
		if ok && v != 0 {
			return v, true
		}
	}
	return 0, false
}

// parseValue parses an amount. Unsigned fields store the absolute value.
func parseValue(s string, signed bool) (float64, bool) {
	v, ok := financials.ParseAmount(s)
	if !ok {
		return 0, false
	}
	if !signed {
		v = math.Abs(v)
	}
	return v, true
}

var (
	einPattern       = regexp.MustCompile(`(?i)(?:\bein\b|employer\s*identification(?:\s*number)?)[:\s#]*(\d{2})[-\s]?(\d{7})\b`)
	naicsPattern     = regexp.MustCompile(`(?i)(?:naics|business\s*(?:activity\s*)?code(?:\s*no\.?)?)[:\s#]*(\d{6})\b`)
	activityPattern  = regexp.MustCompile(`(?i)(?:principal\s*)?business\s*activity[:\s]+([^\n]+)`)
	methodPattern    = regexp.MustCompile(`(?i)accounting\s*method[^\n]*?\b(cash|accrual)\b`)
	cashBasisPattern = regexp.MustCompile(`\bcash\s*(?:basis|method)\b`)
	cityStatePattern = regexp.MustCompile(`(?m)^\s*([A-Za-z][A-Za-z .'\-]{1,40}),\s*([A-Z]{2})\s+\d{5}(?:-\d{4})?\s*$`)
)

func extractCompanyInfo(text string, cls model.DocumentClassification) model.CompanyInfo {
	info := model.CompanyInfo{
		BusinessName:  cls.EntityName,
		EntityType:    cls.DocumentType.EntityType(),
		FiscalYearEnd: "12/31",
	}
	if info.BusinessName == "" {
		info.BusinessName = classify.ExtractEntityName(text)
	}

	if m := einPattern.FindStringSubmatch(text); m != nil {
		info.EIN = m[1] + "-" + m[2]
	}
	if m := naicsPattern.FindStringSubmatch(text); m != nil {
		info.NAICSCode = m[1]
	}
	for _, m := range activityPattern.FindAllStringSubmatch(text, -1) {
		activity := strings.TrimSpace(m[1])
		if activity != "" && !strings.HasPrefix(strings.ToLower(activity), "code") {
			info.BusinessActivity = activity
			break
		}
	}
	info.AccountingMethod = accountingMethod(text)
	if m := cityStatePattern.FindStringSubmatch(text); m != nil {
		info.City = strings.TrimSpace(m[1])
		info.State = m[2]
	}
	return info
}

// accountingMethod prefers an explicit "accounting method" line and falls
// back to any mention, defaulting to accrual.
func accountingMethod(text string) string {
	if m := methodPattern.FindStringSubmatch(text); m != nil {
		if strings.EqualFold(m[1], "cash") {
			return "Cash"
		}
		return "Accrual"
	}
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "accrual") && cashBasisPattern.MatchString(lower) {
		return "Cash"
	}
	return "Accrual"
}

// deriveOwnerInfo mirrors owner-level amounts reported on the entity schedules.
func deriveOwnerInfo(data *model.StructuredFinancialData) {
	comp := data.Expenses.CompensationOfOfficers
	if data.CompanyInfo.EntityType == model.EntityPartnership {
		comp = data.GuaranteedPayments
	}
	var dist float64
	if data.ScheduleK != nil {
		dist = data.ScheduleK.Distributions
	}
	eoy := data.BalanceSheet.EndOfYear
	if comp == 0 && dist == 0 && eoy.LoansToShareholders == 0 && eoy.LoansFromShareholders == 0 {
		return
	}
	o := ownerInfo(data)
	o.OwnerCompensation = comp
	o.Distributions = dist
	o.LoansToShareholders = eoy.LoansToShareholders
	o.LoansFromShareholders = eoy.LoansFromShareholders
}

// pruneEmpty drops optional schedules that matched nothing.
func pruneEmpty(data *model.StructuredFinancialData) {
	if data.ScheduleK != nil && *data.ScheduleK == (model.ScheduleK{}) {
		data.ScheduleK = nil
	}
	if data.ScheduleM1 != nil && *data.ScheduleM1 == (model.ScheduleM1{}) {
		data.ScheduleM1 = nil
	}
}

const sCorpZeroCompRevenue = 250000

func redFlags(data *model.StructuredFinancialData) []model.RedFlag {
	flags := []model.RedFlag{}
	eoy := data.BalanceSheet.EndOfYear
	if eoy.LoansToShareholders > 0 {
		flags = append(flags, model.RedFlag{
			Code:        "LOANS_TO_SHAREHOLDERS",
			Description: "Loans to shareholders may be disguised distributions",
			Amount:      eoy.LoansToShareholders,
		})
	}
	if eoy.RetainedEarnings < 0 {
		flags = append(flags, model.RedFlag{
			Code:        "NEGATIVE_RETAINED_EARNINGS",
			Description: "Accumulated deficit in retained earnings",
			Amount:      eoy.RetainedEarnings,
		})
	}
	revenue := financials.Revenue(data)
	if data.CompanyInfo.EntityType == model.EntitySCorp &&
		data.Expenses.CompensationOfOfficers == 0 && revenue > sCorpZeroCompRevenue {
		flags = append(flags, model.RedFlag{
			Code:        "SCORP_NO_OFFICER_COMP",
			Description: "S-Corp reports no officer compensation on revenue of " + financials.FormatUSD(revenue),
			Amount:      revenue,
		})
	}
	return flags
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
