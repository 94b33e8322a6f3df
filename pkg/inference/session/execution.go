package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-go-golems/ai-threads/pkg/conversation"
	"github.com/go-go-golems/ai-threads/pkg/inference/engine"
	"github.com/go-go-golems/ai-threads/pkg/models"
)

// State is the position of one send in the engine's state machine.
type State string

const (
	StateIdle                    State = "idle"
	StateAwaitingCredentials     State = "awaiting-credentials"
	StateAwaitingModelResolution State = "awaiting-model-resolution"
	StateStreaming               State = "streaming"
	StateCommitting              State = "committing"
	StateAborted                 State = "aborted"
	StateFailed                  State = "failed"
)

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeAborted   Outcome = "aborted"
	OutcomeFailed    Outcome = "failed"
)

// Result describes how a send ended. Message is the assistant message that
// was committed to the store, if any.
type Result struct {
	Outcome Outcome
	Message *conversation.Message
	Usage   *engine.Usage
	Err     error
	Failure engine.FailureClass
}

// Execution is a single in-flight send for one thread. It is cancelable and
// waitable.
type Execution struct {
	ThreadID    string
	InferenceID string
	Model       models.ModelID

	done      chan struct{}
	cancelled atomic.Bool

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	result Result
}

func newExecution(threadID, inferenceID string, model models.ModelID, cancel context.CancelFunc) *Execution {
	return &Execution{
		ThreadID:    threadID,
		InferenceID: inferenceID,
		Model:       model,
		done:        make(chan struct{}),
		state:       StateAwaitingCredentials,
		cancel:      cancel,
	}
}

func (x *Execution) setState(s State) {
	x.mu.Lock()
	x.state = s
	x.mu.Unlock()
}

func (x *Execution) finish(res Result, final State) {
	x.mu.Lock()
	x.result = res
	x.state = final
	cancel := x.cancel
	x.cancel = nil
	x.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	close(x.done)
}

// Cancel asks the send to stop. Deltas that arrive afterwards are ignored and
// the text accumulated so far is committed. It is safe to call multiple
// times and after the send finished.
func (x *Execution) Cancel() {
	if x == nil {
		return
	}
	x.cancelled.Store(true)
	x.mu.Lock()
	cancel := x.cancel
	x.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (x *Execution) Cancelled() bool {
	return x.cancelled.Load()
}

// Wait blocks until the send has finished.
func (x *Execution) Wait() Result {
	<-x.done
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.result
}

// Done is closed when the send has finished.
func (x *Execution) Done() <-chan struct{} {
	return x.done
}

// State returns the current state. Once the send has finished it reports
// StateIdle, StateAborted or StateFailed. StateAborted is only reached from
// StateStreaming; a send cancelled before its stream opened ends in
// StateIdle with OutcomeAborted.
func (x *Execution) State() State {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.state
}

func (x *Execution) IsRunning() bool {
	if x == nil {
		return false
	}
	select {
	case <-x.done:
		return false
	default:
		return true
	}
}
