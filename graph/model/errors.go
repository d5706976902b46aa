package model

import "strings"

// ProviderError represents a failure reported by an LLM provider, with
// enough classification to decide whether the caller may retry.
type ProviderError struct {
	// Provider names the backend that produced the error ("openai",
	// "anthropic", "google").
	Provider string

	// Message is a human-readable description.
	Message string

	// Retryable reports whether the failure is transient (rate limits,
	// overload, network) as opposed to permanent (bad credentials,
	// malformed request).
	Retryable bool

	// Cause is the underlying provider SDK error, if any.
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return e.Provider + ": " + e.Message
}

// Unwrap returns the underlying cause for errors.Is/errors.As.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Classify wraps a raw provider error in a ProviderError, inspecting the
// error text to decide retryability. Provider SDKs surface HTTP status and
// throttling information as message text, so substring matching is the
// portable way to classify across backends.
func Classify(provider string, err error) *ProviderError {
	msg := err.Error()
	return &ProviderError{
		Provider:  provider,
		Message:   msg,
		Retryable: retryable(msg),
		Cause:     err,
	}
}

var transientMarkers = []string{
	"rate limit",
	"rate_limit",
	"429",
	"quota",
	"overloaded",
	"529",
	"500",
	"502",
	"503",
	"504",
	"timeout",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"temporarily",
	"unavailable",
}

func retryable(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range transientMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
