package models

// Equilibrium is the analyst's named diagnosis of a relationship's stable
// state, with ranked outcome predictions. Attached to an assistant message
// when its structured stream event arrives; surfaced only once the message
// reaches the DIAGNOSIS phase.
type Equilibrium struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Confidence  int          `json:"confidence"` // 0-100
	Predictions []Prediction `json:"predictions"`
}

type Prediction struct {
	Outcome     string `json:"outcome"`
	Probability int    `json:"probability"` // 0-100
	Level       string `json:"level"`       // "high" | "medium" | "low" | "minimal"
}

const (
	PredictionHigh    = "high"
	PredictionMedium  = "medium"
	PredictionLow     = "low"
	PredictionMinimal = "minimal"
)

// PredictionLevel derives the qualitative band for a probability. The
// producer stamps this onto the wire; consumers display it as-is.
func PredictionLevel(probability int) string {
	switch {
	case probability > 40:
		return PredictionHigh
	case probability >= 20:
		return PredictionMedium
	case probability >= 10:
		return PredictionLow
	default:
		return PredictionMinimal
	}
}
