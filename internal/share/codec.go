// Package share encodes equilibrium cards into the compact base64 form
// carried by share links and OG-image URLs.
package share

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"lovebomb-backend/internal/models"
)

// Encode packs a payload into a single URL-safe query parameter value.
func Encode(p models.SharePayload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode share payload: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// Decode reverses Encode. It also accepts standard-alphabet base64 so links
// produced by older clients keep working.
func Decode(param string) (models.SharePayload, error) {
	data, err := base64.URLEncoding.DecodeString(param)
	if err != nil {
		data, err = base64.StdEncoding.DecodeString(param)
	}
	if err != nil {
		return models.SharePayload{}, fmt.Errorf("invalid share parameter: %w", err)
	}

	var p models.SharePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return models.SharePayload{}, fmt.Errorf("invalid share payload: %w", err)
	}
	return p, nil
}

// FromEquilibrium builds the card for an equilibrium, carrying its top
// prediction.
func FromEquilibrium(eq *models.Equilibrium) models.SharePayload {
	p := models.SharePayload{
		ID:          eq.ID,
		Name:        eq.Name,
		Description: eq.Description,
		Confidence:  eq.Confidence,
	}
	if len(eq.Predictions) > 0 {
		top := eq.Predictions[0]
		p.Prediction = models.SharePrediction{
			Outcome:     top.Outcome,
			Probability: top.Probability,
			Level:       top.Level,
		}
	}
	return p
}
