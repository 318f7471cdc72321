package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"lovebomb-backend/internal/models"
)

// ErrStreamClosed is returned by Next after the done event or EOF has been
// observed. The decoder is not restartable.
var ErrStreamClosed = errors.New("stream closed")

// Decoder turns the chat response body into a sequence of StreamEvents.
// Each newline-terminated line is parsed independently as one JSON event;
// lines that fail to parse are silently discarded so transient fragmentation
// never surfaces as a user-visible error. Partial lines split across reads
// are buffered until newline-terminated.
type Decoder struct {
	scanner *bufio.Scanner
	done    bool
}

func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Decoder{scanner: scanner}
}

// Next returns the next decoded event. It returns ErrStreamClosed once the
// stream is exhausted and a transport error if the underlying read fails;
// transport failures are distinct from malformed lines, which are skipped.
func (d *Decoder) Next() (models.StreamEvent, error) {
	if d.done {
		return models.StreamEvent{}, ErrStreamClosed
	}

	for d.scanner.Scan() {
		line := strings.TrimSpace(d.scanner.Text())
		if line == "" {
			continue
		}

		var event models.StreamEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue // tolerated: fragment or garbage line
		}
		if event.Type == "" {
			continue
		}

		if event.Type == models.EventDone {
			d.done = true
		}
		return event, nil
	}

	d.done = true
	if err := d.scanner.Err(); err != nil {
		return models.StreamEvent{}, err
	}
	return models.StreamEvent{}, ErrStreamClosed
}

// All drains the stream, invoking fn for each event in arrival order. It
// stops after the done event and returns any transport error.
func (d *Decoder) All(fn func(models.StreamEvent) error) error {
	for {
		event, err := d.Next()
		if errors.Is(err, ErrStreamClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(event); err != nil {
			return err
		}
		if event.Type == models.EventDone {
			return nil
		}
	}
}
