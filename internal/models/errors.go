package models

import (
	"fmt"
	"time"
)

// ChatErrorKind tags the single error union surfaced to the UI. At most one
// ChatError is active at a time; it is cleared on dismiss, retry, or a new
// submission.
type ChatErrorKind string

const (
	ErrRateLimited ChatErrorKind = "rate_limited"
	ErrAPI         ChatErrorKind = "api_error"
	ErrNetwork     ChatErrorKind = "network_error"
	ErrTimeout     ChatErrorKind = "timeout"
)

type ChatError struct {
	Kind       ChatErrorKind
	Message    string
	RetryAfter time.Duration // set only for rate_limited
}

func (e *ChatError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Retryable reports whether a manual retry action should be offered.
// Rate limiting carries its own wait time instead.
func (e *ChatError) Retryable() bool {
	return e.Kind != ErrRateLimited
}

func RateLimitedError(retryAfter time.Duration) *ChatError {
	return &ChatError{
		Kind:       ErrRateLimited,
		Message:    fmt.Sprintf("Too many requests. Try again in %d seconds.", int(retryAfter.Seconds())),
		RetryAfter: retryAfter,
	}
}

func APIChatError(message string) *ChatError {
	if message == "" {
		message = "Something went wrong. Please try again."
	}
	return &ChatError{Kind: ErrAPI, Message: message}
}

func NetworkChatError() *ChatError {
	return &ChatError{Kind: ErrNetwork, Message: "Connection lost. Check your network and try again."}
}

func TimeoutChatError() *ChatError {
	return &ChatError{Kind: ErrTimeout, Message: "The request timed out. Please try again."}
}

// GateRequiredResponse is the 403 body when the free-message gate trips.
type GateRequiredResponse struct {
	Error       string `json:"error"` // always "gate_required"
	PromptCount int    `json:"promptCount"`
}

// RateLimitResponse is the 429 body.
type RateLimitResponse struct {
	RetryAfter int `json:"retryAfter"` // seconds
}

// API error envelope shared by all non-streaming endpoints.
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
