package engine

import (
	"context"
	"io"
)

type channelStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	deltas <-chan Delta
}

// Emitter is handed to stream producers. Emit blocks until the delta is
// buffered or the stream is closed, and reports whether the producer should
// keep going.
type Emitter struct {
	ctx context.Context
	ch  chan<- Delta
}

func (e Emitter) Emit(d Delta) bool {
	select {
	case <-e.ctx.Done():
		return false
	case e.ch <- d:
		return true
	}
}

// NewDeltaStream runs producer in a goroutine and exposes its output as a
// Stream. A nil return from producer appends DeltaEnd, a non-nil return is
// delivered as a DeltaError.
func NewDeltaStream(ctx context.Context, producer func(ctx context.Context, emit Emitter) error) Stream {
	streamCtx, cancel := context.WithCancel(ctx)
	ch := make(chan Delta, 16)
	emit := Emitter{ctx: streamCtx, ch: ch}
	go func() {
		defer close(ch)
		if err := producer(streamCtx, emit); err != nil {
			emit.Emit(ErrorDelta(err))
			return
		}
		emit.Emit(Delta{Type: DeltaEnd})
	}()
	return &channelStream{ctx: streamCtx, cancel: cancel, deltas: ch}
}

func (s *channelStream) Recv() (Delta, error) {
	// drain buffered deltas first so the terminal usage report is not lost
	// when the context and the channel are ready at the same time
	select {
	case d, ok := <-s.deltas:
		if !ok {
			return Delta{}, io.EOF
		}
		return d, nil
	default:
	}

	select {
	case <-s.ctx.Done():
		return Delta{}, s.ctx.Err()
	case d, ok := <-s.deltas:
		if !ok {
			return Delta{}, io.EOF
		}
		return d, nil
	}
}

func (s *channelStream) Close() error {
	s.cancel()
	return nil
}

// Collect drains a stream into its text and usage. It is used by callers
// that do not need incremental output.
func Collect(s Stream) (string, *Usage, error) {
	defer func() { _ = s.Close() }()
	var text string
	var usage *Usage
	for {
		d, err := s.Recv()
		if err == io.EOF {
			return text, usage, nil
		}
		if err != nil {
			return text, usage, err
		}
		switch d.Type {
		case DeltaText:
			text += d.Text
		case DeltaUsage:
			usage = d.Usage
		case DeltaError:
			return text, usage, d.Err
		case DeltaEnd:
			return text, usage, nil
		}
	}
}
