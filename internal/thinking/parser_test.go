package thinking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeader(t *testing.T) {
	segs := Parse("==== GAME SETUP ====")
	require.Len(t, segs, 1)
	assert.Equal(t, KindHeader, segs[0].Kind)
	assert.Equal(t, "GAME SETUP", segs[0].Text)
}

func TestParseHeaderRejectsAsymmetric(t *testing.T) {
	for _, line := range []string{"= just one =", "==== trailing only", "leading only ===="} {
		segs := Parse(line)
		require.Len(t, segs, 1, "input %q", line)
		assert.NotEqual(t, KindHeader, segs[0].Kind, "input %q", line)
	}
}

func TestParseExtensionWithDetail(t *testing.T) {
	block := "EXTENSION V: Credit Rationing — ACTIVE\nHe is rationing commitment.\n\nAfterwards."
	segs := Parse(block)
	require.Len(t, segs, 2)

	ext := segs[0]
	assert.Equal(t, KindExtension, ext.Kind)
	assert.Equal(t, "EXT-V", ext.ID)
	assert.Equal(t, "Credit Rationing", ext.Name)
	assert.Equal(t, "ACTIVE", ext.Status)
	assert.Equal(t, "He is rationing commitment.", ext.Detail)

	assert.Equal(t, KindText, segs[1].Kind)
	assert.Equal(t, "Afterwards.", segs[1].Text)
}

func TestParseExtensionVariants(t *testing.T) {
	tests := []struct {
		line   string
		id     string
		status string
	}{
		{"EXTENSION II: Signaling Games — LIKELY", "EXT-II", "LIKELY"},
		{"[EXTENSION] EXT-7: Sunk Cost Trap - possible", "EXT-7", "POSSIBLE"},
		{"extension iv: Moral Hazard — monitoring", "EXT-IV", "MONITORING"},
	}
	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			segs := Parse(tc.line)
			require.Len(t, segs, 1)
			assert.Equal(t, KindExtension, segs[0].Kind)
			assert.Equal(t, tc.id, segs[0].ID)
			assert.Equal(t, tc.status, segs[0].Status)
		})
	}
}

func TestExtensionDetailStopsAtBoundaries(t *testing.T) {
	block := "EXTENSION I: Screening — ACTIVE\nfirst detail line\nsecond detail line\nKey: insight here\nmore text"
	segs := Parse(block)
	require.GreaterOrEqual(t, len(segs), 2)
	assert.Equal(t, "first detail line\nsecond detail line", segs[0].Detail)
	assert.Equal(t, KindParameter, segs[1].Kind)
	assert.Equal(t, "Key", segs[1].Label)
}

func TestExtensionDetailStopsAtNewExtension(t *testing.T) {
	block := "EXTENSION I: Screening — ACTIVE\ndetail one\nEXTENSION II: Pooling — POSSIBLE"
	segs := Parse(block)
	require.Len(t, segs, 2)
	assert.Equal(t, "detail one", segs[0].Detail)
	assert.Equal(t, "EXT-II", segs[1].ID)
}

func TestParseEquationBeforeParameter(t *testing.T) {
	// Contains a colon but is an equation; must not become a parameter.
	lines := []string{
		"U_M = f(commitment, time)",
		"payoff: U = 2x − c",
		"δ = 0.8 means patience",
		"EV = p × gain",
		"x^{2} = y",
	}
	for _, line := range lines {
		segs := Parse(line)
		require.Len(t, segs, 1, "input %q", line)
		assert.Equal(t, KindEquation, segs[0].Kind, "input %q", line)
	}
}

func TestParseParameterWithContinuations(t *testing.T) {
	block := "Discount factor: 0.4\n- she values the future less now\n• confirmed twice\nNot a continuation ="
	segs := Parse(block)
	require.Len(t, segs, 2)
	assert.Equal(t, KindParameter, segs[0].Kind)
	assert.Equal(t, "Discount factor", segs[0].Label)
	assert.Equal(t, "0.4\n- she values the future less now\n• confirmed twice", segs[0].Value)
}

func TestParseTableDropsSeparatorRow(t *testing.T) {
	block := "| A | B |\n|---|---|\n| 1 | 2 |"
	segs := Parse(block)
	require.Len(t, segs, 1)
	assert.Equal(t, KindTable, segs[0].Kind)
	require.Len(t, segs[0].Rows, 2)
	assert.Equal(t, []string{"A", "B"}, segs[0].Rows[0])
	assert.Equal(t, []string{"1", "2"}, segs[0].Rows[1])
}

func TestParseWhereClause(t *testing.T) {
	segs := Parse("Where c is the cost of leaving")
	require.Len(t, segs, 1)
	assert.Equal(t, KindEquation, segs[0].Kind)
}

func TestParsePlainText(t *testing.T) {
	segs := Parse("She keeps waiting for a proposal.\n\nHe keeps deferring.")
	require.Len(t, segs, 2)
	assert.Equal(t, KindText, segs[0].Kind)
	assert.Equal(t, KindText, segs[1].Kind)
}

func TestParseNeverPanicsOnJunk(t *testing.T) {
	junk := []string{
		"", "   ", "|||", "====", "EXTENSION :", "^{", "<<<>>>", ":::", "|",
	}
	for _, block := range junk {
		assert.NotPanics(t, func() { Parse(block) }, "input %q", block)
	}
}

func TestParseMixedBlockOrdering(t *testing.T) {
	block := `=== PLAYERS ===
Her: high commitment, low leverage
Him: low commitment, high leverage
U_H = b − c·t
Where t is time invested
| Outcome | Prob |
|---------|------|
| Drift   | 60%  |
EXTENSION III: War of Attrition — LIKELY
Both are waiting for the other to concede.`

	segs := Parse(block)
	kinds := make([]Kind, len(segs))
	for i, s := range segs {
		kinds[i] = s.Kind
	}
	assert.Equal(t, []Kind{
		KindHeader, KindParameter, KindParameter, KindEquation,
		KindEquation, KindTable, KindExtension,
	}, kinds)
	assert.Equal(t, "Both are waiting for the other to concede.", segs[6].Detail)
}

func TestGroupClustersConsecutiveParameters(t *testing.T) {
	segs := Parse("Patience: low\nLeverage: his\nShe invested three years.")
	clusters := Group(segs)
	require.Len(t, clusters, 2)
	assert.Equal(t, KindParameter, clusters[0].Kind)
	assert.Len(t, clusters[0].Segments, 2)
	assert.Equal(t, KindText, clusters[1].Kind)
	assert.Len(t, clusters[1].Segments, 1)
}
