package bedrock

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/go-go-golems/ai-threads/pkg/conversation"
	"github.com/go-go-golems/ai-threads/pkg/credentials"
	"github.com/go-go-golems/ai-threads/pkg/inference/engine"
	"github.com/go-go-golems/ai-threads/pkg/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EventReader is the receiving side of a converse stream.
type EventReader interface {
	Events() <-chan types.ConverseStreamOutput
	Close() error
	Err() error
}

// Client is the part of the Bedrock runtime the adapter uses.
type Client interface {
	OpenStream(ctx context.Context, input *bedrockruntime.ConverseStreamInput) (EventReader, error)
	Converse(ctx context.Context, input *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error)
}

type runtimeClient struct {
	client *bedrockruntime.Client
}

func (r *runtimeClient) OpenStream(ctx context.Context, input *bedrockruntime.ConverseStreamInput) (EventReader, error) {
	out, err := r.client.ConverseStream(ctx, input)
	if err != nil {
		return nil, err
	}
	return out.GetStream(), nil
}

func (r *runtimeClient) Converse(ctx context.Context, input *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
	return r.client.Converse(ctx, input)
}

// Adapter talks to the Bedrock converse API.
type Adapter struct {
	client Client
}

var _ engine.Adapter = (*Adapter)(nil)

func NewAdapter(client Client) *Adapter {
	return &Adapter{client: client}
}

// NewAdapterFromCredentials builds a regional runtime client that signs with
// the given credentials.
func NewAdapterFromCredentials(region string, creds aws.Credentials) *Adapter {
	cfg := credentials.StaticConfig(region, creds)
	return NewAdapter(&runtimeClient{client: bedrockruntime.NewFromConfig(cfg)})
}

func (a *Adapter) Send(ctx context.Context, messages []conversation.Message, model models.ModelID) (engine.Stream, error) {
	if err := engine.CheckRequest(messages, model); err != nil {
		return nil, err
	}

	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(string(model)),
		Messages: MessagesToBedrock(messages),
	}
	log.Debug().Str("model", string(model)).Int("messages", len(input.Messages)).Msg("Opening bedrock converse stream")

	reader, err := a.client.OpenStream(ctx, input)
	if err != nil {
		return nil, &engine.RequestSetupError{Err: err}
	}

	return engine.NewDeltaStream(ctx, func(ctx context.Context, emit engine.Emitter) error {
		return Consume(ctx, reader, emit)
	}), nil
}

// Consume forwards the events of reader through emit in content block order.
// Token usage is emitted once, after the event channel is exhausted. Held
// back text is released before a read error is reported.
func Consume(ctx context.Context, reader EventReader, emit engine.Emitter) error {
	defer func() {
		_ = reader.Close()
	}()

	merger := NewContentBlockMerger()
	events := reader.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				for _, d := range merger.Flush() {
					if !emit.Emit(d) {
						return ctx.Err()
					}
				}
				if err := reader.Err(); err != nil {
					return &engine.StreamReadError{Err: err}
				}
				if u := merger.Usage(); u != nil {
					emit.Emit(engine.UsageDelta(u.Input, u.Output))
				}
				log.Debug().
					Str("stop_reason", merger.StopReason()).
					Int("length", len(merger.Text())).
					Msg("Bedrock stream finished")
				return nil
			}
			for _, d := range merger.Add(ev) {
				if !emit.Emit(d) {
					return ctx.Err()
				}
			}
		}
	}
}

func (a *Adapter) Complete(ctx context.Context, messages []conversation.Message, model models.ModelID) (string, error) {
	if err := engine.CheckRequest(messages, model); err != nil {
		return "", err
	}

	out, err := a.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:  aws.String(string(model)),
		Messages: MessagesToBedrock(messages),
	})
	if err != nil {
		return "", &engine.RequestSetupError{Err: err}
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.Errorf("unexpected converse output %T", out.Output)
	}
	var parts []string
	for _, b := range msg.Value.Content {
		if t, ok := b.(*types.ContentBlockMemberText); ok {
			parts = append(parts, t.Value)
		}
	}
	return strings.Join(parts, ""), nil
}

// MessagesToBedrock converts a history into converse messages. Consecutive
// messages with the same role are merged since the API requires alternation.
func MessagesToBedrock(messages []conversation.Message) []types.Message {
	coalesced := conversation.Coalesce(messages)
	ret := make([]types.Message, 0, len(coalesced))
	for _, m := range coalesced {
		role := types.ConversationRoleUser
		if m.Role == conversation.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		blocks := make([]types.ContentBlock, 0, len(m.Content))
		for _, b := range m.Content {
			if cb := blockToBedrock(b); cb != nil {
				blocks = append(blocks, cb)
			}
		}
		if len(blocks) == 0 {
			continue
		}
		ret = append(ret, types.Message{Role: role, Content: blocks})
	}
	return ret
}

func blockToBedrock(b conversation.ContentBlock) types.ContentBlock {
	switch b.Kind {
	case conversation.BlockKindText:
		if b.Text == "" {
			return nil
		}
		return &types.ContentBlockMemberText{Value: b.Text}
	case conversation.BlockKindImage:
		return &types.ContentBlockMemberImage{Value: types.ImageBlock{
			Format: types.ImageFormat(b.Format),
			Source: &types.ImageSourceMemberBytes{Value: b.Bytes},
		}}
	case conversation.BlockKindDocument:
		return &types.ContentBlockMemberDocument{Value: types.DocumentBlock{
			Format: types.DocumentFormat(b.Format),
			Name:   aws.String(b.Name),
			Source: &types.DocumentSourceMemberBytes{Value: b.Bytes},
		}}
	default:
		// tool blocks are stored for display only
		log.Trace().Str("kind", string(b.Kind)).Msg("Skipping block for bedrock request")
		return nil
	}
}
