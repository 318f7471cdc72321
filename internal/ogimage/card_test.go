package ogimage

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lovebomb-backend/internal/models"
)

func TestRenderProducesPNG(t *testing.T) {
	payload := models.SharePayload{
		ID:          "eq-commitment-rationing",
		Name:        "Commitment Rationing Equilibrium",
		Description: "One party strategically limits observable investment while the other over-invests to compensate.",
		Confidence:  78,
		Prediction: models.SharePrediction{
			Outcome:     "Relationship continues in current pattern",
			Probability: 45,
			Level:       "high",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, payload))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 1200, img.Bounds().Dx())
	assert.Equal(t, 630, img.Bounds().Dy())
}

func TestRenderZeroPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, models.SharePayload{}))
	assert.NotZero(t, buf.Len())
}

func TestWrap(t *testing.T) {
	assert.Nil(t, wrap("", 10))
	assert.Equal(t, []string{"one two", "three"}, wrap("one two three", 8))
	assert.Equal(t, []string{"supercalifragilistic"}, wrap("supercalifragilistic", 5))
}
