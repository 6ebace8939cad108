package confidence

import (
	"github.com/sells-group/finextract/internal/financials"
	"github.com/sells-group/finextract/internal/model"
)

// QuickCheck is the result of QuickConfidenceCheck.
type QuickCheck struct {
	Proceed  bool     `json:"proceed"`
	Reason   string   `json:"reason,omitempty"`
	Cautions []string `json:"cautions"`
}

// QuickConfidenceCheck decides before full scoring whether an extraction is
// worth spending AI validation on. UNKNOWN documents and documents without
// revenue block; balance sheets and K-1s never carry revenue and are exempt
// from the revenue check.
func QuickConfidenceCheck(in *model.Stage2Output) QuickCheck {
	out := QuickCheck{Proceed: true, Cautions: []string{}}
	if in == nil || in.Classification.DocumentType == model.DocUnknown {
		out.Proceed = false
		out.Reason = "document type could not be determined"
		return out
	}

	docType := in.Classification.DocumentType
	if docType != model.DocBalanceSheet && docType != model.DocScheduleK1 && financials.Revenue(&in.Data) == 0 {
		out.Proceed = false
		out.Reason = "no revenue extracted"
		return out
	}

	if in.Classification.Confidence == model.ConfidenceLow {
		out.Cautions = append(out.Cautions, "low classification confidence")
	}
	if docType.IsTaxReturn() && financials.OwnerCompensation(&in.Data) == 0 {
		out.Cautions = append(out.Cautions, "owner compensation not found")
	}
	return out
}
