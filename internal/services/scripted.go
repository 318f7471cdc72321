package services

import (
	"context"
	"strings"

	"lovebomb-backend/internal/models"
)

// ScriptedAnalyst is the stand-in analyst used when no model API key is
// configured. It walks the conversation through the three phases with
// canned output that exercises the full tag/fence grammar, streamed in
// small deltas like a real model would produce.
type ScriptedAnalyst struct{}

func NewScriptedAnalyst() *ScriptedAnalyst {
	return &ScriptedAnalyst{}
}

func (a *ScriptedAnalyst) Stream(ctx context.Context, history []models.ChatMessage, emit func(models.StreamEvent) error) error {
	turn := userTurns(history)

	var text string
	var eq *models.Equilibrium
	var fa *models.FormalAnalysis

	switch {
	case turn <= 1:
		text = intakeScript
	case turn == 2:
		text = buildingScript
	default:
		text = diagnosisScript
		eq = scriptedEquilibrium()
		fa = scriptedAnalysis()
	}

	for _, delta := range chunks(text, 24) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(models.TextEvent(delta)); err != nil {
			return err
		}
	}

	if eq != nil {
		if err := emit(models.EquilibriumEvent(eq)); err != nil {
			return err
		}
	}
	if fa != nil {
		if err := emit(models.AnalysisEvent(fa)); err != nil {
			return err
		}
	}
	return nil
}

func userTurns(history []models.ChatMessage) int {
	n := 0
	for _, m := range history {
		if m.Role == string(models.RoleUser) {
			n++
		}
	}
	return n
}

// chunks splits text into deltas of roughly size bytes, never mid-rune.
func chunks(text string, size int) []string {
	var out []string
	runes := []rune(text)
	for start := 0; start < len(runes); {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		start = end
	}
	return out
}

func scriptedEquilibrium() *models.Equilibrium {
	probs := []struct {
		outcome string
		p       int
	}{
		{"Relationship continues in current pattern", 45},
		{"Gradual drift and separation", 30},
		{"Explicit renegotiation of terms", 15},
		{"Abrupt exit by either party", 8},
	}
	eq := &models.Equilibrium{
		ID:          "eq-commitment-rationing",
		Name:        "Commitment Rationing Equilibrium",
		Description: "One party strategically limits observable investment while the other over-invests to compensate, producing a stable but asymmetric exchange.",
		Confidence:  78,
	}
	for _, pr := range probs {
		eq.Predictions = append(eq.Predictions, models.Prediction{
			Outcome:     pr.outcome,
			Probability: pr.p,
			Level:       models.PredictionLevel(pr.p),
		})
	}
	return eq
}

func scriptedAnalysis() *models.FormalAnalysis {
	return &models.FormalAnalysis{
		Parameters: []models.Parameter{
			{Name: "Discount factor (δ)", Value: "0.45", Justification: "Short planning horizon inferred from avoidance of future-oriented commitments."},
			{Name: "Commitment asymmetry", Value: "High", Justification: "Observable investment flows one direction; reciprocation is rationed."},
			{Name: "Exit cost", Value: "Moderate", Justification: "Shared social circle raises the price of leaving for both players."},
		},
		Extensions: []models.Extension{
			{ID: "EXT-V", Name: "Credit Rationing", Status: models.ExtensionActive, Detail: "Commitment is withheld below the market-clearing level to preserve option value."},
			{ID: "EXT-III", Name: "War of Attrition", Status: models.ExtensionLikely, Detail: "Both players are waiting for the other to concede the renegotiation first."},
			{ID: "EXT-VII", Name: "Signaling Games", Status: models.ExtensionPossible, Detail: "Intermittent affection may function as a pooling signal."},
		},
	}
}

var intakeScript = strings.TrimSpace(`
<phase>INTAKE</phase>Let's establish the payoff structure before anything else.

A few questions to parameterize the model:

1. How long has this been running, and who initiated?
2. When plans change at the last minute, whose schedule bends?
3. What happens when you raise the topic of where this is going?

Answer plainly. Hedged inputs produce hedged equilibria.
`) + "\n"

var buildingScript = strings.TrimSpace(`
<phase>BUILDING</phase><thinking>
=== MODEL SETUP ===
Players: Her (investor), Him (rationer)
Discount factor: 0.45
- inferred from deferred commitment talk
U_H = b − c·t
Where t is time invested without reciprocation
| Signal | Frequency | Cost |
|--------|-----------|------|
| Plans deferred | weekly | low |
| Future talk avoided | always | high |
</thinking>I'm constructing the game tree from what you've told me.

The structure that emerges is an asymmetric investment game: one player commits resources each period, the other holds a real option and pays only the minimum required to keep it open.

Tell me one more thing: when you pull back, does he close the distance, or let it widen?
`) + "\n"

var diagnosisScript = strings.TrimSpace(`
<phase>DIAGNOSIS</phase><thinking>
=== EQUILIBRIUM SELECTION ===
Candidate: commitment rationing
Stability: high under current parameters
EXTENSION V: Credit Rationing — ACTIVE
He supplies commitment below the clearing level on purpose.
EXTENSION III: War of Attrition — LIKELY
U_M = p × b − c, with p declining each period
Key: the asymmetry is the equilibrium, not a phase of it
</thinking>The model has converged.

This is a commitment rationing equilibrium. The pattern you're describing is not a stage on the way to something else; under the current parameters it is the stable end state.

The numbers and the full parameter table are on the card. The short version: nothing changes until someone changes the payoff structure, and the current structure rewards him for exactly the behavior you're experiencing.
`) + "\n"
