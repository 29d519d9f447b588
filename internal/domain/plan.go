package domain

// PlanAction is the reconciliation decision for one SKU.
type PlanAction string

const (
	ActionCreate PlanAction = "create"
	ActionUpdate PlanAction = "update"
	ActionSkip   PlanAction = "skip"
)

// Skip and update reasons.
const (
	ReasonNoChanges        = "no changes"
	ReasonCreationDisabled = "creation disabled"
	ReasonAmbiguousMatch   = "ambiguous match"
	ReasonMissingSKU       = "missing sku"
	ReasonDuplicateSource  = "duplicate source sku"
	ReasonFieldsChanged    = "fields changed"
	ReasonMissingInDest    = "missing in destination"
)

// FieldChange describes one field difference for display.
type FieldChange struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// PlanItem is one entry of a diff plan.
type PlanItem struct {
	SKU     string        `json:"sku"`
	Action  PlanAction    `json:"action"`
	Reason  string        `json:"reason,omitempty"`
	Changes []FieldChange `json:"changes,omitempty"`
	Deltas  ItemDeltas    `json:"deltas"`
	Source  CatalogItem   `json:"-"`
}

// Actionable reports whether the item writes to the destination.
func (p PlanItem) Actionable() bool {
	return p.Action == ActionCreate || p.Action == ActionUpdate
}

// PlanSummary counts plan actions.
type PlanSummary struct {
	Create int `json:"create"`
	Update int `json:"update"`
	Skip   int `json:"skip"`
}

// Summarize counts the actions of plan.
func Summarize(plan []PlanItem) PlanSummary {
	var s PlanSummary
	for _, it := range plan {
		switch it.Action {
		case ActionCreate:
			s.Create++
		case ActionUpdate:
			s.Update++
		default:
			s.Skip++
		}
	}
	return s
}

// Preview is a bounded, non-committal plan sample.
type Preview struct {
	ConnectionID string      `json:"connection_id"`
	Sampled      int         `json:"sampled"`
	Truncated    bool        `json:"truncated"`
	Summary      PlanSummary `json:"summary"`
	Items        []PlanItem  `json:"items"`
}
