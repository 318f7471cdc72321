package stream

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lovebomb-backend/internal/models"
)

func collect(t *testing.T, input string) []models.StreamEvent {
	t.Helper()
	d := NewDecoder(strings.NewReader(input))
	var events []models.StreamEvent
	err := d.All(func(e models.StreamEvent) error {
		events = append(events, e)
		return nil
	})
	require.NoError(t, err)
	return events
}

func TestDecoderTextAndDone(t *testing.T) {
	input := `{"type":"text","content":"<phase>INTAKE</phase>Hello "}
{"type":"text","content":"world"}
{"type":"done","promptCount":3,"isUnlocked":false}
`
	events := collect(t, input)
	require.Len(t, events, 3)

	assert.Equal(t, models.EventText, events[0].Type)
	assert.Equal(t, "<phase>INTAKE</phase>Hello ", events[0].Content)
	assert.Equal(t, "world", events[1].Content)
	assert.Equal(t, models.EventDone, events[2].Type)
	assert.Equal(t, 3, events[2].PromptCount)
	assert.False(t, events[2].IsUnlocked)
}

func TestDecoderSkipsMalformedLines(t *testing.T) {
	input := `{"type":"text","content":"a"}
this is not json
{"type":"text","con
{"type":"text","content":"b"}
{"type":"done","promptCount":1}
`
	events := collect(t, input)
	require.Len(t, events, 3)
	assert.Equal(t, "a", events[0].Content)
	assert.Equal(t, "b", events[1].Content)
	assert.Equal(t, models.EventDone, events[2].Type)
}

func TestDecoderSkipsBlankAndUntypedLines(t *testing.T) {
	input := "\n\n{\"content\":\"no type\"}\n{\"type\":\"done\"}\n"
	events := collect(t, input)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventDone, events[0].Type)
}

func TestDecoderStructuredEvents(t *testing.T) {
	input := `{"type":"equilibrium","data":{"id":"eq-1","name":"Anxious-Avoidant Trap","description":"d","confidence":82,"predictions":[{"outcome":"Breakup within 6 months","probability":55,"level":"high"}]}}
{"type":"analysis","data":{"parameters":[{"name":"Discount factor","value":"0.4","justification":"j"}],"extensions":[]}}
{"type":"done"}
`
	events := collect(t, input)
	require.Len(t, events, 3)

	eq, err := events[0].Equilibrium()
	require.NoError(t, err)
	assert.Equal(t, "eq-1", eq.ID)
	assert.Equal(t, 82, eq.Confidence)
	require.Len(t, eq.Predictions, 1)
	assert.Equal(t, "high", eq.Predictions[0].Level)

	fa, err := events[1].Analysis()
	require.NoError(t, err)
	require.Len(t, fa.Parameters, 1)
	assert.Equal(t, "Discount factor", fa.Parameters[0].Name)
}

func TestDecoderClosedAfterDone(t *testing.T) {
	input := `{"type":"done"}
{"type":"text","content":"late"}
`
	d := NewDecoder(strings.NewReader(input))

	event, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, models.EventDone, event.Type)

	_, err = d.Next()
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestDecoderEOFWithoutDone(t *testing.T) {
	d := NewDecoder(strings.NewReader(`{"type":"text","content":"a"}` + "\n"))

	_, err := d.Next()
	require.NoError(t, err)

	_, err = d.Next()
	assert.ErrorIs(t, err, ErrStreamClosed)
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestDecoderTransportErrorPropagates(t *testing.T) {
	transportErr := errors.New("connection reset")
	d := NewDecoder(&failingReader{
		data: []byte(`{"type":"text","content":"a"}` + "\n"),
		err:  transportErr,
	})

	_, err := d.Next()
	require.NoError(t, err)

	_, err = d.Next()
	assert.ErrorIs(t, err, transportErr)
	assert.NotErrorIs(t, err, ErrStreamClosed)
}

func TestWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.SendText("<phase>BUILDING</phase>Let me model this."))
	require.NoError(t, w.Send(models.EquilibriumEvent(&models.Equilibrium{ID: "eq-2", Name: "War of Attrition"})))
	require.NoError(t, w.SendDone(4, true))

	events := collect(t, buf.String())
	require.Len(t, events, 3)
	assert.Equal(t, models.EventText, events[0].Type)
	assert.Equal(t, models.EventEquilibrium, events[1].Type)
	assert.Equal(t, 4, events[2].PromptCount)
	assert.True(t, events[2].IsUnlocked)
}
