package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/go-go-golems/ai-threads/pkg/conversation"
	"github.com/go-go-golems/ai-threads/pkg/inference/engine"
	"github.com/go-go-golems/ai-threads/pkg/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// Adapter talks to an OpenAI-compatible chat completion endpoint.
type Adapter struct {
	client *go_openai.Client
}

var _ engine.Adapter = (*Adapter)(nil)

// MakeClient builds a client for apiKey. An empty baseURL keeps the default
// OpenAI endpoint.
func MakeClient(apiKey string, baseURL string) *go_openai.Client {
	config := go_openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return go_openai.NewClientWithConfig(config)
}

func NewAdapter(client *go_openai.Client) *Adapter {
	return &Adapter{client: client}
}

func (a *Adapter) Send(ctx context.Context, messages []conversation.Message, model models.ModelID) (engine.Stream, error) {
	if err := engine.CheckRequest(messages, model); err != nil {
		return nil, err
	}

	req := go_openai.ChatCompletionRequest{
		Model:    string(model),
		Messages: MessagesToOpenAI(messages),
		Stream:   true,
		StreamOptions: &go_openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	log.Debug().Str("model", req.Model).Int("messages", len(req.Messages)).Msg("OpenAI opening chat completion stream")

	stream, err := a.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("OpenAI streaming request failed")
		return nil, &engine.RequestSetupError{Err: err}
	}

	return engine.NewDeltaStream(ctx, func(ctx context.Context, emit engine.Emitter) error {
		defer func() {
			if err := stream.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close OpenAI stream")
			}
		}()

		var usage *engine.Usage
		chunkCount := 0
		for {
			select {
			case <-ctx.Done():
				log.Debug().Int("chunks_received", chunkCount).Msg("OpenAI streaming cancelled by context")
				return ctx.Err()
			default:
			}

			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				log.Debug().Int("chunks_received", chunkCount).Msg("OpenAI stream completed")
				break
			}
			if err != nil {
				log.Error().Err(err).Int("chunks_received", chunkCount).Msg("OpenAI stream receive failed")
				return &engine.StreamReadError{Err: err}
			}
			chunkCount++

			if len(response.Choices) > 0 {
				if delta := response.Choices[0].Delta.Content; delta != "" {
					log.Trace().Int("chunk", chunkCount).Str("delta", delta).Msg("OpenAI received chunk")
					if !emit.Emit(engine.TextDelta(delta)) {
						return ctx.Err()
					}
				}
			}
			if response.Usage != nil {
				usage = &engine.Usage{
					Input:  response.Usage.PromptTokens,
					Output: response.Usage.CompletionTokens,
				}
			}
		}

		if usage != nil {
			emit.Emit(engine.UsageDelta(usage.Input, usage.Output))
		}
		return nil
	}), nil
}

func (a *Adapter) Complete(ctx context.Context, messages []conversation.Message, model models.ModelID) (string, error) {
	if err := engine.CheckRequest(messages, model); err != nil {
		return "", err
	}

	resp, err := a.client.CreateChatCompletion(ctx, go_openai.ChatCompletionRequest{
		Model:    string(model),
		Messages: MessagesToOpenAI(messages),
	})
	if err != nil {
		return "", &engine.RequestSetupError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("OpenAI returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// MessagesToOpenAI converts a history into chat messages. Images become data
// URLs. Documents and tool blocks have no chat completion equivalent and are
// dropped.
func MessagesToOpenAI(messages []conversation.Message) []go_openai.ChatCompletionMessage {
	ret := make([]go_openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range conversation.Coalesce(messages) {
		role := go_openai.ChatMessageRoleUser
		if m.Role == conversation.RoleAssistant {
			role = go_openai.ChatMessageRoleAssistant
		}

		parts := []go_openai.ChatMessagePart{}
		hasImage := false
		for _, b := range m.Content {
			switch b.Kind {
			case conversation.BlockKindText:
				if b.Text != "" {
					parts = append(parts, go_openai.ChatMessagePart{Type: go_openai.ChatMessagePartTypeText, Text: b.Text})
				}
			case conversation.BlockKindImage:
				hasImage = true
				parts = append(parts, go_openai.ChatMessagePart{
					Type: go_openai.ChatMessagePartTypeImageURL,
					ImageURL: &go_openai.ChatMessageImageURL{
						URL:    fmt.Sprintf("data:image/%s;base64,%s", b.Format, base64.StdEncoding.EncodeToString(b.Bytes)),
						Detail: go_openai.ImageURLDetailAuto,
					},
				})
			default:
				log.Warn().Str("kind", string(b.Kind)).Str("name", b.Name).Msg("Dropping block not supported by OpenAI chat completions")
			}
		}
		if len(parts) == 0 {
			continue
		}

		if !hasImage {
			msg := go_openai.ChatCompletionMessage{Role: role}
			for i, p := range parts {
				if i > 0 {
					msg.Content += "\n"
				}
				msg.Content += p.Text
			}
			ret = append(ret, msg)
			continue
		}
		ret = append(ret, go_openai.ChatCompletionMessage{Role: role, MultiContent: parts})
	}
	return ret
}
