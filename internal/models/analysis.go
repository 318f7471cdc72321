package models

// FormalAnalysis is the structured parameter/extension breakdown supporting
// an equilibrium. Either list may be empty; the panel is shown when either
// is non-empty or a thinking block accompanies the message.
type FormalAnalysis struct {
	Parameters []Parameter `json:"parameters"`
	Extensions []Extension `json:"extensions"`
}

type Parameter struct {
	Name          string `json:"name"`
	Value         string `json:"value"`
	Justification string `json:"justification"`
}

type Extension struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"` // "ACTIVE" | "LIKELY" | "POSSIBLE"
	Detail string `json:"detail"`
}

const (
	ExtensionActive   = "ACTIVE"
	ExtensionLikely   = "LIKELY"
	ExtensionPossible = "POSSIBLE"
)

func (a *FormalAnalysis) IsEmpty() bool {
	return a == nil || (len(a.Parameters) == 0 && len(a.Extensions) == 0)
}
