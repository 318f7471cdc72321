package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lovebomb-backend/internal/models"
)

func TestExtractStructured(t *testing.T) {
	text := "The model has converged.\n\n" +
		"```equilibrium\n" +
		`{"id":"eq-1","name":"Commitment Rationing","description":"d","confidence":78,"predictions":[{"outcome":"stays","probability":45,"level":"high"}]}` + "\n" +
		"```\n\n" +
		"```analysis\n" +
		`{"parameters":[{"name":"δ","value":"0.45","justification":"short horizon"}],"extensions":[{"id":"EXT-V","name":"Credit Rationing","status":"ACTIVE","detail":"d"}]}` + "\n" +
		"```\n"

	eq, fa := extractStructured(text)
	require.NotNil(t, eq)
	assert.Equal(t, "eq-1", eq.ID)
	assert.Equal(t, 78, eq.Confidence)
	require.Len(t, eq.Predictions, 1)
	assert.Equal(t, 45, eq.Predictions[0].Probability)

	require.NotNil(t, fa)
	require.Len(t, fa.Parameters, 1)
	assert.Equal(t, "0.45", fa.Parameters[0].Value)
	require.Len(t, fa.Extensions, 1)
	assert.Equal(t, models.ExtensionActive, fa.Extensions[0].Status)
}

func TestExtractStructuredSkipsBroken(t *testing.T) {
	text := "```equilibrium\n{not json\n```\n" +
		"```equilibrium\n" + `{"id":"eq-2","name":"n","confidence":50}` + "\n```\n"

	eq, fa := extractStructured(text)
	require.NotNil(t, eq)
	assert.Equal(t, "eq-2", eq.ID)
	assert.Nil(t, fa)
}

func TestExtractStructuredIgnoresUnterminated(t *testing.T) {
	eq, fa := extractStructured("```equilibrium\n{\"id\":\"eq-3\"")
	assert.Nil(t, eq)
	assert.Nil(t, fa)
}

func TestExtractStructuredIgnoresOrdinaryFences(t *testing.T) {
	eq, fa := extractStructured("```python\nprint('hi')\n```\n")
	assert.Nil(t, eq)
	assert.Nil(t, fa)
}

func TestScriptedAnalystPhases(t *testing.T) {
	a := NewScriptedAnalyst()

	collect := func(history []models.ChatMessage) (string, *models.Equilibrium, *models.FormalAnalysis) {
		var text string
		var eq *models.Equilibrium
		var fa *models.FormalAnalysis
		err := a.Stream(context.Background(), history, func(ev models.StreamEvent) error {
			switch ev.Type {
			case models.EventText:
				text += ev.Content
			case models.EventEquilibrium:
				e, err := ev.Equilibrium()
				if err != nil {
					return err
				}
				eq = e
			case models.EventAnalysis:
				f, err := ev.Analysis()
				if err != nil {
					return err
				}
				fa = f
			}
			return nil
		})
		require.NoError(t, err)
		return text, eq, fa
	}

	first := []models.ChatMessage{{Role: "user", Content: "He cancels on me constantly."}}
	text, eq, fa := collect(first)
	assert.Contains(t, text, "<phase>INTAKE</phase>")
	assert.Nil(t, eq)
	assert.Nil(t, fa)

	second := append(first,
		models.ChatMessage{Role: "assistant", Content: "questions"},
		models.ChatMessage{Role: "user", Content: "Two years. His schedule always wins."},
	)
	text, eq, fa = collect(second)
	assert.Contains(t, text, "<phase>BUILDING</phase>")
	assert.Contains(t, text, "<thinking>")
	assert.Nil(t, eq)
	assert.Nil(t, fa)

	third := append(second,
		models.ChatMessage{Role: "assistant", Content: "one more thing"},
		models.ChatMessage{Role: "user", Content: "He lets it widen."},
	)
	text, eq, fa = collect(third)
	assert.Contains(t, text, "<phase>DIAGNOSIS</phase>")
	require.NotNil(t, eq)
	assert.NotEmpty(t, eq.Predictions)
	for _, p := range eq.Predictions {
		assert.Equal(t, models.PredictionLevel(p.Probability), p.Level)
	}
	require.NotNil(t, fa)
	assert.False(t, fa.IsEmpty())
}

func TestScriptedAnalystCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewScriptedAnalyst()
	err := a.Stream(ctx, []models.ChatMessage{{Role: "user", Content: "hi"}}, func(models.StreamEvent) error {
		t.Fatal("emit after cancel")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
