// Package gate implements the social-engagement unlock flow shown once the
// free-message cap trips. Every transition is driven by an explicit user
// action; the external verification step is simulated with a delay and
// currently always succeeds.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type State string

const (
	StateInitial         State = "initial"
	StateConnecting      State = "connecting"
	StateNeedsEngagement State = "needs_engagement"
	StateChecking        State = "checking"
	StateSuccess         State = "success"
)

// Verifier stands in for the external social-engagement check. The default
// implementation waits its delay and reports success.
type Verifier interface {
	Verify(ctx context.Context, handle string) error
}

type delayVerifier struct {
	delay time.Duration
}

func (v delayVerifier) Verify(ctx context.Context, handle string) error {
	timer := time.NewTimer(v.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Machine is the unlock flow: initial → connecting → needs_engagement →
// checking → success. Success is terminal and hands control back to the
// chat engine through OnUnlock.
type Machine struct {
	mu       sync.Mutex
	state    State
	handle   string
	verifier Verifier

	connectDelay time.Duration

	// OnUnlock flips the session to unlocked and resumes the chat.
	OnUnlock func()
	// OnChange observes state transitions. Optional.
	OnChange func(State)
}

type Option func(*Machine)

// WithVerifier replaces the simulated engagement check.
func WithVerifier(v Verifier) Option {
	return func(m *Machine) { m.verifier = v }
}

// WithDelays overrides the simulated service delays; tests pass zero.
func WithDelays(connect, verify time.Duration) Option {
	return func(m *Machine) {
		m.connectDelay = connect
		m.verifier = delayVerifier{delay: verify}
	}
}

func NewMachine(onUnlock func(), opts ...Option) *Machine {
	m := &Machine{
		state:        StateInitial,
		connectDelay: 1500 * time.Millisecond,
		verifier:     delayVerifier{delay: 2 * time.Second},
		OnUnlock:     onUnlock,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Handle() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

// Connect links the visitor's external handle and moves to
// needs_engagement after the simulated connection delay.
func (m *Machine) Connect(ctx context.Context, handle string) error {
	if err := m.transition(StateInitial, StateConnecting); err != nil {
		return err
	}
	m.mu.Lock()
	m.handle = handle
	m.mu.Unlock()

	if err := wait(ctx, m.connectDelay); err != nil {
		m.rollback(StateInitial)
		return err
	}
	return m.transition(StateConnecting, StateNeedsEngagement)
}

// Verify runs the engagement check and, on success, fires OnUnlock.
func (m *Machine) Verify(ctx context.Context) error {
	if err := m.transition(StateNeedsEngagement, StateChecking); err != nil {
		return err
	}

	m.mu.Lock()
	handle := m.handle
	m.mu.Unlock()

	if err := m.verifier.Verify(ctx, handle); err != nil {
		m.rollback(StateNeedsEngagement)
		return err
	}
	if err := m.transition(StateChecking, StateSuccess); err != nil {
		return err
	}
	if m.OnUnlock != nil {
		m.OnUnlock()
	}
	return nil
}

// Continue acknowledges the success screen. The machine is terminal here;
// this only validates the caller's view of the state.
func (m *Machine) Continue() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateSuccess {
		return fmt.Errorf("continue from %s: %w", m.state, ErrInvalidTransition)
	}
	return nil
}

var ErrInvalidTransition = errors.New("invalid gate transition")

func (m *Machine) transition(from, to State) error {
	m.mu.Lock()
	if m.state != from {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("%s -> %s while in %s: %w", from, to, state, ErrInvalidTransition)
	}
	m.state = to
	m.mu.Unlock()
	m.notify(to)
	return nil
}

func (m *Machine) rollback(to State) {
	m.mu.Lock()
	m.state = to
	m.mu.Unlock()
	m.notify(to)
}

func (m *Machine) notify(s State) {
	if m.OnChange != nil {
		m.OnChange(s)
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
