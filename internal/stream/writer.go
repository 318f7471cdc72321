package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"lovebomb-backend/internal/models"
)

// Writer emits StreamEvents as newline-delimited JSON, flushing after every
// event so deltas reach the client as they are produced.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter wraps an http.ResponseWriter (or any io.Writer) for event
// output. Call Prepare before the first event when writing an HTTP response.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

// Prepare sets the streaming response headers.
func (w *Writer) Prepare(rw http.ResponseWriter) {
	rw.Header().Set("Content-Type", "application/x-ndjson")
	rw.Header().Set("Cache-Control", "no-cache")
	rw.Header().Set("X-Accel-Buffering", "no")
}

// Send writes one event and flushes.
func (w *Writer) Send(event models.StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode stream event: %w", err)
	}
	if _, err := w.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write stream event: %w", err)
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

func (w *Writer) SendText(delta string) error {
	return w.Send(models.TextEvent(delta))
}

func (w *Writer) SendDone(promptCount int, isUnlocked bool) error {
	return w.Send(models.DoneEvent(promptCount, isUnlocked))
}
