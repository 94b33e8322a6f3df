package engine

import (
	"context"
	"io"
	"testing"

	"github.com/go-go-golems/ai-threads/pkg/conversation"
	"github.com/go-go-golems/ai-threads/pkg/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeltaStream_NormalizedSequence(t *testing.T) {
	s := NewDeltaStream(context.Background(), func(ctx context.Context, emit Emitter) error {
		emit.Emit(TextDelta("Hel"))
		emit.Emit(TextDelta("lo"))
		emit.Emit(UsageDelta(10, 2))
		return nil
	})
	defer func() { _ = s.Close() }()

	var got []Delta
	for {
		d, err := s.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, d)
	}

	require.Len(t, got, 4)
	assert.Equal(t, "Hel", got[0].Text)
	assert.Equal(t, "lo", got[1].Text)
	assert.Equal(t, DeltaUsage, got[2].Type)
	assert.Equal(t, &Usage{Input: 10, Output: 2}, got[2].Usage)
	assert.Equal(t, DeltaEnd, got[3].Type)
}

func TestDeltaStream_ProducerErrorIsDelivered(t *testing.T) {
	boom := errors.New("boom")
	s := NewDeltaStream(context.Background(), func(ctx context.Context, emit Emitter) error {
		emit.Emit(TextDelta("Par"))
		return &StreamReadError{Err: boom}
	})

	text, usage, err := Collect(s)
	assert.Equal(t, "Par", text)
	assert.Nil(t, usage)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, FailureStreamRead, Classify(err))
}

func TestDeltaStream_CloseStopsProducer(t *testing.T) {
	stopped := make(chan struct{})
	s := NewDeltaStream(context.Background(), func(ctx context.Context, emit Emitter) error {
		defer close(stopped)
		for emit.Emit(TextDelta("x")) {
		}
		return ctx.Err()
	})

	_, err := s.Recv()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	<-stopped

	// whatever was buffered before Close drains out, then the stream ends
	for i := 0; i < 32; i++ {
		if _, err = s.Recv(); err != nil {
			break
		}
	}
	assert.Equal(t, io.EOF, err)
}

func TestCollect(t *testing.T) {
	s := NewDeltaStream(context.Background(), func(ctx context.Context, emit Emitter) error {
		emit.Emit(TextDelta("a"))
		emit.Emit(TextDelta("b"))
		emit.Emit(UsageDelta(3, 4))
		return nil
	})
	text, usage, err := Collect(s)
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
	assert.Equal(t, &Usage{Input: 3, Output: 4}, usage)
}

func TestCheckRequest(t *testing.T) {
	err := CheckRequest(nil, models.Claude3Haiku)
	assert.True(t, errors.Is(err, ErrEmptyHistory))
	assert.Equal(t, FailureRequestSetup, Classify(err))

	err = CheckRequest([]conversation.Message{conversation.NewUserMessage("hi")}, "nope")
	assert.Equal(t, FailureUnsupportedModel, Classify(err))

	assert.NoError(t, CheckRequest([]conversation.Message{conversation.NewUserMessage("hi")}, models.GPT4o))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, FailureNone, Classify(nil))
	assert.Equal(t, FailureCredential, Classify(errors.Wrap(ErrMissingCredentials, "resolve")))
	assert.Equal(t, FailureAPIKey, Classify(ErrMissingAPIKey))
	assert.Equal(t, FailureUnsupportedModel, Classify(errors.Wrap(models.ErrUnknownModel, "x")))
	assert.Equal(t, FailureRequestSetup, Classify(&RequestSetupError{Err: errors.New("dial")}))
	assert.Equal(t, FailureStreamRead, Classify(errors.Wrap(&StreamReadError{Err: io.ErrUnexpectedEOF}, "recv")))
	assert.Equal(t, FailureRequestSetup, Classify(errors.New("other")))
	assert.NotEmpty(t, FailureStreamRead.Describe())
}
