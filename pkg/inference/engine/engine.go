package engine

import (
	"context"

	"github.com/go-go-golems/ai-threads/pkg/conversation"
	"github.com/go-go-golems/ai-threads/pkg/models"
)

// Adapter is the normalization layer over one model backend. Implementations
// hold no state between calls.
type Adapter interface {
	// Send issues a streaming request for the given history. An error returned
	// here means nothing was emitted (a *RequestSetupError or a sentinel from
	// this package). Errors after the stream has started are delivered as
	// DeltaError values wrapping a *StreamReadError.
	Send(ctx context.Context, messages []conversation.Message, model models.ModelID) (Stream, error)

	// Complete issues a single non-streaming request and returns the text of
	// the reply.
	Complete(ctx context.Context, messages []conversation.Message, model models.ModelID) (string, error)
}

// Stream is the normalized response stream. It yields DeltaText values for a
// single growing assistant text block, then exactly one DeltaUsage, then
// DeltaEnd. Recv returns io.EOF once the stream is exhausted.
type Stream interface {
	Recv() (Delta, error)
	Close() error
}

type DeltaType string

const (
	DeltaText  DeltaType = "delta"
	DeltaUsage DeltaType = "usage"
	DeltaEnd   DeltaType = "end"
	DeltaError DeltaType = "error"
)

// Usage is a provider token report for one request.
type Usage struct {
	Input  int `json:"input" yaml:"input"`
	Output int `json:"output" yaml:"output"`
}

type Delta struct {
	Type  DeltaType `json:"type"`
	Text  string    `json:"text,omitempty"`
	Usage *Usage    `json:"usage,omitempty"`
	Err   error     `json:"-"`
}

func TextDelta(text string) Delta {
	return Delta{Type: DeltaText, Text: text}
}

func UsageDelta(input, output int) Delta {
	return Delta{Type: DeltaUsage, Usage: &Usage{Input: input, Output: output}}
}

func ErrorDelta(err error) Delta {
	return Delta{Type: DeltaError, Err: err}
}

// Factory resolves the adapter for a model given resolved credentials.
type Factory interface {
	Resolve(ctx context.Context, model models.ModelID, creds Credentials) (Adapter, error)
}

// Credentials are the resolved cloud credentials plus the optional API key
// override configured by the user.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	OpenAIKey       string
}

// CheckRequest validates the Adapter input constraints.
func CheckRequest(messages []conversation.Message, model models.ModelID) error {
	if len(messages) == 0 {
		return &RequestSetupError{Err: ErrEmptyHistory}
	}
	if !models.Known(model) {
		return ErrUnsupportedModel
	}
	return nil
}
