package events

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/ai-threads/pkg/helpers"
)

type recordingHandler struct {
	mu      sync.Mutex
	partial []string
	final   []string
	errs    []string
	stopped int
	started int
}

func (r *recordingHandler) HandleStart(ctx context.Context, e *EventPartialCompletionStart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
	return nil
}

func (r *recordingHandler) HandlePartialCompletion(ctx context.Context, e *EventPartialCompletion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partial = append(r.partial, e.Delta)
	return nil
}

func (r *recordingHandler) HandleFinal(ctx context.Context, e *EventFinal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.final = append(r.final, e.Text)
	return nil
}

func (r *recordingHandler) HandleError(ctx context.Context, e *EventError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, e.FailureClass)
	return nil
}

func (r *recordingHandler) HandleInterrupt(ctx context.Context, e *EventInterrupt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
	return nil
}

func TestNewEventFromJson_Typed(t *testing.T) {
	md := EventMetadata{ID: uuid.New(), ThreadID: "t1", Usage: &Usage{InputTokens: 3, OutputTokens: 4}}
	sink := &bufferSink{}
	require.NoError(t, sink.PublishEvent(NewErrorEvent(md, errors.New("reset"), "StreamReadError", "Par")))

	e, err := NewEventFromJson(sink.payloads[0])
	require.NoError(t, err)
	ev, ok := e.(*EventError)
	require.True(t, ok)
	assert.Equal(t, "reset", ev.ErrorString)
	assert.Equal(t, "StreamReadError", ev.FailureClass)
	assert.Equal(t, "Par", ev.Text)
	assert.Equal(t, "t1", ev.Metadata().ThreadID)
	assert.Equal(t, 4, ev.Metadata().Usage.OutputTokens)
	assert.NotEmpty(t, ev.Payload())

	_, err = NewEventFromJson([]byte("null"))
	assert.Error(t, err)
}

type bufferSink struct {
	payloads [][]byte
}

func (b *bufferSink) PublishEvent(e Event) error {
	msg, err := json.Marshal(e)
	if err != nil {
		return err
	}
	b.payloads = append(b.payloads, msg)
	return nil
}

func TestPublishEventToContext(t *testing.T) {
	sink := &bufferSink{}
	ctx := WithEventSinks(context.Background(), sink)
	ctx = WithEventSinks(ctx)
	assert.Len(t, GetEventSinks(ctx), 1)

	PublishEventToContext(ctx, NewFinalEvent(EventMetadata{ID: uuid.New()}, "done"))
	assert.Len(t, sink.payloads, 1)

	assert.NotPanics(t, func() {
		PublishEventToContext(context.Background(), NewFinalEvent(EventMetadata{}, "x"))
	})
}

func TestEventRouter_DispatchesThroughWatermill(t *testing.T) {
	router, err := NewEventRouter()
	require.NoError(t, err)
	defer func() { _ = router.Close() }()

	handler := &recordingHandler{}
	var out bytes.Buffer
	var correlation []string
	var mu sync.Mutex

	router.AddHandler("dispatch", "chat", NewChatDispatchHandler(handler))
	router.AddHandler("printer", "chat", StepPrinterFunc("", &out))
	router.AddHandler("meta", "chat", func(msg *message.Message) error {
		defer msg.Ack()
		mu.Lock()
		defer mu.Unlock()
		correlation = append(correlation, msg.Metadata.Get("correlation_id"))
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = router.Run(ctx)
	}()
	select {
	case <-router.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("router did not start")
	}

	sink := NewWatermillSink(helpers.CorrelationPublisherDecorator{Publisher: router.Publisher}, "chat")
	md := EventMetadata{ID: uuid.New(), ThreadID: "t1", InferenceID: "inf-1"}
	require.NoError(t, sink.PublishEvent(NewStartEvent(md)))
	require.NoError(t, sink.PublishEvent(NewPartialCompletionEvent(md, "Hel", "Hel")))
	require.NoError(t, sink.PublishEvent(NewPartialCompletionEvent(md, "lo", "Hello")))
	require.NoError(t, sink.PublishEvent(NewFinalEvent(md, "Hello")))

	require.Eventually(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.final) == 1
	}, 5*time.Second, 5*time.Millisecond)

	handler.mu.Lock()
	assert.Equal(t, 1, handler.started)
	assert.Equal(t, []string{"Hel", "lo"}, handler.partial)
	assert.Equal(t, []string{"Hello"}, handler.final)
	handler.mu.Unlock()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(correlation) == 4
	}, 5*time.Second, 5*time.Millisecond)
	mu.Lock()
	for _, c := range correlation {
		assert.Equal(t, "inf-1", c)
	}
	mu.Unlock()

	// publishing blocks until every handler acked, so the printer is done
	assert.Contains(t, out.String(), "Hello")
}
