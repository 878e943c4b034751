package validation

// UI actions recommended by the engine.
const (
	ActionApprove      = "approve"
	ActionFlagCategory = "flag_category"
	ActionAskUser      = "ask_user"
	ActionReview       = "review"
	ActionManualReview = "manual_review"
)

// Pattern names, equal to the matched result type.
const (
	PatternCategoryValidated   = "category_validated"
	PatternCategoryError       = "category_error"
	PatternAmbiguousDescriptor = "ambiguous_descriptor"
	PatternClearMatch          = "clear_match"
	PatternUnclear             = "unclear"
)

// Detection is one rule's verdict over the evidence bundle.
type Detection struct {
	Confidence       float64 `json:"confidence"`
	Action           string  `json:"action"`
	Brand            *string `json:"brand,omitempty"`
	ExpectedCategory string  `json:"expected_category,omitempty"`
	Reasoning        string  `json:"reasoning"`
}

// Pattern is one decision rule. Detect must be pure over the evidence:
// same bundle in, same verdict out, no network calls. Rules are evaluated
// in increasing Priority order and the first match wins, so adding a rule
// means inserting it at the right priority, never editing its neighbors.
type Pattern interface {
	Name() string
	Priority() int
	Detect(ev *Evidence) (*Detection, bool)
}

// DefaultPatterns is the engine's ordered rule list.
func DefaultPatterns() []Pattern {
	return []Pattern{
		categoryValidated{},
		categoryError{},
		ambiguousDescriptor{},
		clearMatch{},
		unclear{},
	}
}
