package models

import "encoding/json"

// Stream event discriminants. Each line of the chat response body is one
// JSON-encoded StreamEvent; "done" is always the last event of a turn.
const (
	EventText        = "text"
	EventEquilibrium = "equilibrium"
	EventAnalysis    = "analysis"
	EventDone        = "done"
)

// StreamEvent is one decoded unit from the chat response stream: a text
// delta, a fully-formed structured object, or the completion signal carrying
// server-authoritative session counters.
type StreamEvent struct {
	Type        string          `json:"type"`
	Content     string          `json:"content,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	PromptCount int             `json:"promptCount,omitempty"`
	IsUnlocked  bool            `json:"isUnlocked,omitempty"`
}

func TextEvent(delta string) StreamEvent {
	return StreamEvent{Type: EventText, Content: delta}
}

func EquilibriumEvent(eq *Equilibrium) StreamEvent {
	data, _ := json.Marshal(eq)
	return StreamEvent{Type: EventEquilibrium, Data: data}
}

func AnalysisEvent(fa *FormalAnalysis) StreamEvent {
	data, _ := json.Marshal(fa)
	return StreamEvent{Type: EventAnalysis, Data: data}
}

func DoneEvent(promptCount int, isUnlocked bool) StreamEvent {
	return StreamEvent{Type: EventDone, PromptCount: promptCount, IsUnlocked: isUnlocked}
}

// Equilibrium decodes the payload of an equilibrium event.
func (e StreamEvent) Equilibrium() (*Equilibrium, error) {
	eq := &Equilibrium{}
	if err := json.Unmarshal(e.Data, eq); err != nil {
		return nil, err
	}
	return eq, nil
}

// Analysis decodes the payload of an analysis event.
func (e StreamEvent) Analysis() (*FormalAnalysis, error) {
	fa := &FormalAnalysis{}
	if err := json.Unmarshal(e.Data, fa); err != nil {
		return nil, err
	}
	return fa, nil
}
