package engine

import (
	"fmt"

	"github.com/go-go-golems/ai-threads/pkg/models"
	"github.com/pkg/errors"
)

var (
	ErrMissingCredentials = errors.New("no credentials available")
	ErrMissingAPIKey      = errors.New("no API key available")
	ErrUnsupportedModel   = errors.New("model is not supported by any provider")
	ErrEmptyHistory       = errors.New("message history is empty")
)

// RequestSetupError is returned when a request fails before any data was
// streamed back.
type RequestSetupError struct {
	Err error
}

func (e *RequestSetupError) Error() string {
	return fmt.Sprintf("request failed: %v", e.Err)
}

func (e *RequestSetupError) Unwrap() error { return e.Err }

// StreamReadError is delivered after some data may already have been emitted.
// Partial output stays with the consumer.
type StreamReadError struct {
	Err error
}

func (e *StreamReadError) Error() string {
	return fmt.Sprintf("stream read failed: %v", e.Err)
}

func (e *StreamReadError) Unwrap() error { return e.Err }

type FailureClass string

const (
	FailureNone             FailureClass = ""
	FailureCredential       FailureClass = "CredentialError"
	FailureAPIKey           FailureClass = "ApiKeyError"
	FailureRequestSetup     FailureClass = "RequestSetupError"
	FailureStreamRead       FailureClass = "StreamReadError"
	FailureUnsupportedModel FailureClass = "UnsupportedModelError"
)

// Classify maps an error onto the user-visible failure taxonomy. Errors that
// fit nowhere else count as request setup failures.
func Classify(err error) FailureClass {
	if err == nil {
		return FailureNone
	}
	var sre *StreamReadError
	var rse *RequestSetupError
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return FailureCredential
	case errors.Is(err, ErrMissingAPIKey):
		return FailureAPIKey
	case errors.Is(err, ErrUnsupportedModel), errors.Is(err, models.ErrUnknownModel):
		return FailureUnsupportedModel
	case errors.As(err, &sre):
		return FailureStreamRead
	case errors.As(err, &rse):
		return FailureRequestSetup
	default:
		return FailureRequestSetup
	}
}

// Describe returns a short human readable sentence for a failure class.
func (c FailureClass) Describe() string {
	switch c {
	case FailureCredential:
		return "Could not resolve AWS credentials, check your preferences"
	case FailureAPIKey:
		return "Could not find an API key for this provider"
	case FailureRequestSetup:
		return "The request to the model provider failed"
	case FailureStreamRead:
		return "The response stream was interrupted"
	case FailureUnsupportedModel:
		return "The selected model is not supported"
	default:
		return ""
	}
}
