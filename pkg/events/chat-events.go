package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type EventType string

const (
	EventTypeStart             EventType = "start"
	EventTypePartialCompletion EventType = "partial"
	EventTypeFinal             EventType = "final"
	EventTypeInterrupt         EventType = "interrupt"
	EventTypeError             EventType = "error"
	// EventTypeThreadUpdated is published when the store changed a thread
	// outside of a streaming response, for example after naming.
	EventTypeThreadUpdated EventType = "thread-updated"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta,omitempty"`

	// store payload if the event was deserialized from JSON (see NewEventFromJson), not further used
	payload []byte
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

var _ Event = &EventImpl{}

type EventPartialCompletionStart struct {
	EventImpl
}

func NewStartEvent(metadata EventMetadata) *EventPartialCompletionStart {
	return &EventPartialCompletionStart{
		EventImpl: EventImpl{Type_: EventTypeStart, Metadata_: metadata},
	}
}

// EventPartialCompletion carries one text increment and the response so far.
type EventPartialCompletion struct {
	EventImpl
	Delta      string `json:"delta"`
	Completion string `json:"completion"`
}

func NewPartialCompletionEvent(metadata EventMetadata, delta string, completion string) *EventPartialCompletion {
	return &EventPartialCompletion{
		EventImpl:  EventImpl{Type_: EventTypePartialCompletion, Metadata_: metadata},
		Delta:      delta,
		Completion: completion,
	}
}

type EventFinal struct {
	EventImpl
	Text string `json:"text"`
}

func NewFinalEvent(metadata EventMetadata, text string) *EventFinal {
	return &EventFinal{
		EventImpl: EventImpl{Type_: EventTypeFinal, Metadata_: metadata},
		Text:      text,
	}
}

// EventInterrupt is published when the user stopped a response early. Text
// is what was committed.
type EventInterrupt struct {
	EventImpl
	Text string `json:"text"`
}

func NewInterruptEvent(metadata EventMetadata, text string) *EventInterrupt {
	return &EventInterrupt{
		EventImpl: EventImpl{Type_: EventTypeInterrupt, Metadata_: metadata},
		Text:      text,
	}
}

type EventError struct {
	EventImpl
	ErrorString string `json:"error_string"`
	// FailureClass is the user-visible failure category.
	FailureClass string `json:"failure_class,omitempty"`
	// Text is the partial response that was kept, if any.
	Text string `json:"text,omitempty"`
}

func NewErrorEvent(metadata EventMetadata, err error, failureClass string, text string) *EventError {
	return &EventError{
		EventImpl:    EventImpl{Type_: EventTypeError, Metadata_: metadata},
		ErrorString:  err.Error(),
		FailureClass: failureClass,
		Text:         text,
	}
}

type EventThreadUpdated struct {
	EventImpl
	Name string `json:"name"`
}

func NewThreadUpdatedEvent(metadata EventMetadata, name string) *EventThreadUpdated {
	return &EventThreadUpdated{
		EventImpl: EventImpl{Type_: EventTypeThreadUpdated, Metadata_: metadata},
		Name:      name,
	}
}

var (
	_ Event = &EventPartialCompletionStart{}
	_ Event = &EventPartialCompletion{}
	_ Event = &EventFinal{}
	_ Event = &EventInterrupt{}
	_ Event = &EventError{}
	_ Event = &EventThreadUpdated{}
)

// EventMetadata is passed along with every event.
type EventMetadata struct {
	ID          uuid.UUID `json:"message_id" yaml:"message_id" mapstructure:"message_id"`
	ThreadID    string    `json:"thread_id,omitempty" yaml:"thread_id,omitempty" mapstructure:"thread_id"`
	InferenceID string    `json:"inference_id,omitempty" yaml:"inference_id,omitempty" mapstructure:"inference_id"`
	Model       string    `json:"model,omitempty" yaml:"model,omitempty" mapstructure:"model"`
	Usage       *Usage    `json:"usage,omitempty" yaml:"usage,omitempty" mapstructure:"usage"`
	// Extra carries provider-specific/context values
	Extra map[string]interface{} `json:"extra,omitempty" yaml:"extra,omitempty" mapstructure:"extra"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("message_id", em.ID.String())
	if em.ThreadID != "" {
		e.Str("thread_id", em.ThreadID)
	}
	if em.InferenceID != "" {
		e.Str("inference_id", em.InferenceID)
	}
	if em.Model != "" {
		e.Str("model", em.Model)
	}
	if em.Usage != nil {
		e.Int("input_tokens", em.Usage.InputTokens)
		e.Int("output_tokens", em.Usage.OutputTokens)
	}
}

func NewEventFromJson(b []byte) (Event, error) {
	var e *EventImpl
	err := json.Unmarshal(b, &e)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("empty event payload")
	}

	e.payload = b

	switch e.Type_ {
	case EventTypeStart:
		return typed[EventPartialCompletionStart](e)
	case EventTypePartialCompletion:
		return typed[EventPartialCompletion](e)
	case EventTypeFinal:
		return typed[EventFinal](e)
	case EventTypeInterrupt:
		return typed[EventInterrupt](e)
	case EventTypeError:
		return typed[EventError](e)
	case EventTypeThreadUpdated:
		return typed[EventThreadUpdated](e)
	}

	return e, nil
}

func typed[T any, PT interface {
	*T
	Event
}](e *EventImpl) (Event, error) {
	ret, ok := ToTypedEvent[T](e)
	if !ok {
		return nil, fmt.Errorf("could not cast event to %T", ret)
	}
	var ev PT = ret
	setPayload(ev, e.payload)
	return ev, nil
}

func setPayload(ev Event, b []byte) {
	type payloadHolder interface{ impl() *EventImpl }
	if h, ok := ev.(payloadHolder); ok {
		h.impl().payload = b
	}
}

func (e *EventImpl) impl() *EventImpl { return e }

func ToTypedEvent[T any](e Event) (*T, bool) {
	var ret *T
	err := json.Unmarshal(e.Payload(), &ret)
	if err != nil || ret == nil {
		return nil, false
	}

	return ret, true
}
