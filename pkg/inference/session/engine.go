// Package session drives conversations: it turns a thread's history into a
// provider request, consumes the normalized response stream into a live
// projection and commits the result to the store.
package session

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/ai-threads/pkg/conversation"
	"github.com/go-go-golems/ai-threads/pkg/credentials"
	"github.com/go-go-golems/ai-threads/pkg/events"
	"github.com/go-go-golems/ai-threads/pkg/inference/engine"
	"github.com/go-go-golems/ai-threads/pkg/models"
	"github.com/go-go-golems/ai-threads/pkg/store"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrSendInProgress   = errors.New("a response is already streaming for this thread")
	ErrThreadNotFound   = errors.New("thread not found")
	ErrAlreadyTriggered = errors.New("thread has already been triggered")
	ErrNoActiveSend     = errors.New("thread has no active response")
	ErrNotHydrated      = errors.New("store has not loaded persisted threads yet")
)

// Projection is the in-flight response of a thread. It only exists while a
// send is running.
type Projection struct {
	ThreadID string
	Response string
}

type Engine struct {
	store    *store.Store
	creds    credentials.Provider
	factory  engine.Factory
	notifier Notifier
	sinks    []events.EventSink

	requestTimeout time.Duration
	namingModel    models.ModelID

	mu          sync.Mutex
	runs        map[string]*Execution
	projections map[string]Projection
	triggered   map[string]bool
}

type Option func(*Engine)

func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

func WithEventSinks(sinks ...events.EventSink) Option {
	return func(e *Engine) {
		e.sinks = append(e.sinks, sinks...)
	}
}

// WithRequestTimeout bounds the time from credential resolution until the
// response stream is open. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.requestTimeout = d
	}
}

func WithNamingModel(model models.ModelID) Option {
	return func(e *Engine) {
		e.namingModel = model
	}
}

// NewEngine creates an engine and installs it as the naming sub-flow of s.
func NewEngine(s *store.Store, creds credentials.Provider, factory engine.Factory, options ...Option) *Engine {
	ret := &Engine{
		store:       s,
		creds:       creds,
		factory:     factory,
		notifier:    LogNotifier{},
		namingModel: models.Claude3Sonnet,
		runs:        map[string]*Execution{},
		projections: map[string]Projection{},
		triggered:   map[string]bool{},
	}
	for _, o := range options {
		o(ret)
	}
	s.SetNamer(ret)
	return ret
}

// Submit sends the thread to its model. A non-nil msg is appended to the
// thread right away; a nil msg resends the history as it is, which is how a
// trailing user message is retried after a failure.
//
// Only one send per thread may be active. Concurrent submits are dropped
// with ErrSendInProgress. Sends are refused with ErrNotHydrated until the
// store has been hydrated.
func (e *Engine) Submit(ctx context.Context, threadID string, msg *conversation.Message) (*Execution, error) {
	if !e.store.HasHydrated() {
		return nil, ErrNotHydrated
	}

	e.mu.Lock()
	if x := e.runs[threadID]; x != nil && x.IsRunning() {
		e.mu.Unlock()
		log.Warn().Str("thread_id", threadID).Msg("Dropping submit, a response is already streaming")
		return nil, ErrSendInProgress
	}

	thread, ok := e.store.Snapshot(threadID)
	if !ok {
		e.mu.Unlock()
		return nil, errors.Wrap(ErrThreadNotFound, threadID)
	}
	history := thread.Messages
	if msg != nil {
		history = append(history, *msg)
	}
	if len(history) == 0 {
		e.mu.Unlock()
		return nil, engine.ErrEmptyHistory
	}

	runCtx, cancel := context.WithCancel(ctx)
	x := newExecution(threadID, uuid.NewString(), thread.Model, cancel)
	e.runs[threadID] = x
	e.projections[threadID] = Projection{ThreadID: threadID}
	e.mu.Unlock()

	if msg != nil {
		e.store.AddMessage(threadID, *msg, nil)
	}

	log.Debug().
		Str("thread_id", threadID).
		Str("inference_id", x.InferenceID).
		Str("model", string(x.Model)).
		Int("messages", len(history)).
		Msg("Submitting thread")

	go e.run(runCtx, x, history)
	return x, nil
}

// TriggerCreated produces the first reply of a freshly created thread. It
// fires at most once per thread.
func (e *Engine) TriggerCreated(ctx context.Context, threadID string) (*Execution, error) {
	if !e.store.HasHydrated() {
		return nil, ErrNotHydrated
	}

	e.mu.Lock()
	if e.triggered[threadID] {
		e.mu.Unlock()
		log.Debug().Str("thread_id", threadID).Msg("Thread was already triggered")
		return nil, ErrAlreadyTriggered
	}
	e.triggered[threadID] = true
	e.mu.Unlock()

	return e.Submit(ctx, threadID, nil)
}

// Start creates a thread seeded with msg and triggers its first reply.
func (e *Engine) Start(ctx context.Context, msg conversation.Message, model models.ModelID) (string, *Execution, error) {
	id := e.store.CreateThread(msg, model)
	x, err := e.TriggerCreated(ctx, id)
	return id, x, err
}

func (e *Engine) Cancel(threadID string) error {
	e.mu.Lock()
	x := e.runs[threadID]
	e.mu.Unlock()
	if x == nil || !x.IsRunning() {
		return ErrNoActiveSend
	}
	log.Debug().Str("thread_id", threadID).Msg("Cancelling response")
	x.Cancel()
	return nil
}

func (e *Engine) State(threadID string) State {
	e.mu.Lock()
	x := e.runs[threadID]
	e.mu.Unlock()
	if x == nil {
		return StateIdle
	}
	return x.State()
}

func (e *Engine) Projection(threadID string) (Projection, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.projections[threadID]
	return p, ok
}

// Execution returns the active send of a thread.
func (e *Engine) Execution(threadID string) (*Execution, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	x, ok := e.runs[threadID]
	return x, ok
}

func (e *Engine) setProjection(threadID string, response string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.projections[threadID]; ok {
		e.projections[threadID] = Projection{ThreadID: threadID, Response: response}
	}
}

func (e *Engine) transition(x *Execution, s State) {
	x.setState(s)
	log.Debug().Str("thread_id", x.ThreadID).Str("inference_id", x.InferenceID).Str("state", string(s)).Msg("Engine state")
}

// resolveCredentials turns the stored preferences into adapter credentials.
// A failing provider and a provider without credentials are the same
// outcome.
func (e *Engine) resolveCredentials(ctx context.Context) (engine.Credentials, error) {
	prefs := e.store.GetState().Preferences
	hint := credentials.Hint{
		UseProfile:      prefs.UseCredentialProfile,
		Profile:         prefs.CredentialProfile,
		AccessKeyID:     prefs.AccessKeyID,
		SecretAccessKey: prefs.SecretAccessKey,
	}
	creds, err := e.creds.Resolve(ctx, hint)
	if err != nil {
		log.Warn().Err(err).Msg("Credential resolution failed")
		return engine.Credentials{}, errors.Wrap(engine.ErrMissingCredentials, err.Error())
	}
	if creds == nil {
		return engine.Credentials{}, engine.ErrMissingCredentials
	}
	return engine.Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
		OpenAIKey:       prefs.OpenAIKey,
	}, nil
}

func (e *Engine) open(ctx context.Context, x *Execution, history []conversation.Message) (engine.Stream, error) {
	creds, err := e.resolveCredentials(ctx)
	if err != nil {
		return nil, err
	}

	e.transition(x, StateAwaitingModelResolution)
	adapter, err := e.factory.Resolve(ctx, x.Model, creds)
	if err != nil {
		return nil, err
	}
	return adapter.Send(ctx, history, x.Model)
}

func (e *Engine) run(ctx context.Context, x *Execution, history []conversation.Message) {
	var (
		res   Result
		final = StateIdle
	)
	defer func() {
		e.mu.Lock()
		delete(e.projections, x.ThreadID)
		if e.runs[x.ThreadID] == x {
			delete(e.runs, x.ThreadID)
		}
		e.mu.Unlock()
		x.finish(res, final)
		log.Debug().
			Str("thread_id", x.ThreadID).
			Str("inference_id", x.InferenceID).
			Str("outcome", string(res.Outcome)).
			Msg("Engine idle")
	}()

	ctx = events.WithEventSinks(ctx, e.sinks...)
	meta := events.EventMetadata{
		ID:          uuid.New(),
		ThreadID:    x.ThreadID,
		InferenceID: x.InferenceID,
		Model:       string(x.Model),
	}

	e.transition(x, StateAwaitingCredentials)

	var timer *time.Timer
	if e.requestTimeout > 0 {
		timer = time.AfterFunc(e.requestTimeout, func() {
			x.mu.Lock()
			cancel := x.cancel
			x.mu.Unlock()
			if cancel != nil {
				cancel()
			}
		})
	}

	stream, err := e.open(ctx, x, history)
	// a timer that already fired owns the outcome, even if the stream opened
	if timer != nil && !timer.Stop() && !x.Cancelled() {
		if stream != nil {
			_ = stream.Close()
		}
		if err == nil {
			err = context.DeadlineExceeded
		}
		err = &engine.RequestSetupError{Err: errors.Wrapf(err, "no response within %s", e.requestTimeout)}
	}
	if err != nil {
		// nothing streamed yet, so a cancel here returns to idle
		if x.Cancelled() {
			res = Result{Outcome: OutcomeAborted}
			events.PublishEventToContext(ctx, events.NewInterruptEvent(meta, ""))
			return
		}
		final = StateFailed
		res = e.fail(ctx, x, meta, err, "")
		return
	}
	defer func() {
		_ = stream.Close()
	}()

	e.transition(x, StateStreaming)
	events.PublishEventToContext(ctx, events.NewStartEvent(meta))

	var (
		text      strings.Builder
		usage     *engine.Usage
		streamErr error
		aborted   bool
	)
loop:
	for {
		if x.Cancelled() {
			aborted = true
			break
		}
		d, err := stream.Recv()
		// deltas that were already buffered when the user cancelled are dropped
		if x.Cancelled() {
			aborted = true
			break
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				aborted = true
			} else {
				streamErr = err
			}
			break
		}

		switch d.Type {
		case engine.DeltaText:
			text.WriteString(d.Text)
			e.setProjection(x.ThreadID, text.String())
			log.Trace().Str("thread_id", x.ThreadID).Str("delta", d.Text).Msg("Delta")
			events.PublishEventToContext(ctx, events.NewPartialCompletionEvent(meta, d.Text, text.String()))
		case engine.DeltaUsage:
			usage = d.Usage
		case engine.DeltaError:
			if ctx.Err() != nil {
				aborted = true
			} else {
				streamErr = d.Err
			}
			break loop
		case engine.DeltaEnd:
		}
	}

	e.transition(x, StateCommitting)
	committed := text.String()
	res.Usage = usage
	if usage != nil {
		meta.Usage = &events.Usage{InputTokens: usage.Input, OutputTokens: usage.Output}
	}
	if committed != "" {
		m := conversation.NewAssistantMessage(committed)
		var ti *store.TokenInfo
		if usage != nil {
			ti = &store.TokenInfo{Model: x.Model, Input: usage.Input, Output: usage.Output}
		}
		if e.store.AddMessage(x.ThreadID, m, ti) {
			res.Message = &m
		} else {
			log.Debug().Str("thread_id", x.ThreadID).Msg("Thread went away before the response was committed")
		}
	}
	if usage != nil {
		e.store.AddTokens(x.Model, usage.Input, usage.Output)
	}

	switch {
	case streamErr != nil:
		final = StateFailed
		failed := e.fail(ctx, x, meta, streamErr, committed)
		failed.Message = res.Message
		failed.Usage = res.Usage
		res = failed
	case aborted:
		final = StateAborted
		res.Outcome = OutcomeAborted
		events.PublishEventToContext(ctx, events.NewInterruptEvent(meta, committed))
	default:
		res.Outcome = OutcomeCompleted
		events.PublishEventToContext(ctx, events.NewFinalEvent(meta, committed))
	}
}

func (e *Engine) fail(ctx context.Context, x *Execution, meta events.EventMetadata, err error, partial string) Result {
	class := engine.Classify(err)
	e.transition(x, StateFailed)
	log.Error().Err(err).Str("thread_id", x.ThreadID).Str("failure", string(class)).Msg("Send failed")

	e.notifier.Notify(ctx, Notification{
		ThreadID: x.ThreadID,
		Failure:  class,
		Message:  class.Describe(),
		Err:      err,
	})
	events.PublishEventToContext(ctx, events.NewErrorEvent(meta, err, string(class), partial))

	return Result{Outcome: OutcomeFailed, Err: err, Failure: class}
}
