package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-go-golems/ai-threads/pkg/conversation"
	"github.com/go-go-golems/ai-threads/pkg/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const namingPrompt = `Give a short phrase to describe this question: "%s". Do not end the phrase with a period.`

var _ store.Namer = (*Engine)(nil)

// Name asks the naming model for a short title of a thread seeded with seed.
// Seeds without text keep the default name.
func (e *Engine) Name(ctx context.Context, seed conversation.Message) (string, error) {
	text := strings.TrimSpace(seed.LeadText())
	if text == "" {
		return conversation.DefaultThreadName, nil
	}

	creds, err := e.resolveCredentials(ctx)
	if err != nil {
		return "", err
	}
	adapter, err := e.factory.Resolve(ctx, e.namingModel, creds)
	if err != nil {
		return "", errors.Wrap(err, "could not resolve naming model")
	}

	prompt := conversation.NewUserMessage(fmt.Sprintf(namingPrompt, text))
	name, err := adapter.Complete(ctx, []conversation.Message{prompt}, e.namingModel)
	if err != nil {
		return "", errors.Wrap(err, "naming request failed")
	}
	name = strings.TrimSpace(name)
	log.Debug().Str("name", name).Msg("Named thread")
	return name, nil
}
