package conversation

import (
	"github.com/go-go-golems/ai-threads/pkg/models"
)

// DefaultThreadName is the provisional name given to a thread until the
// naming request resolves.
const DefaultThreadName = "New chat"

// Thread is one persisted conversation. Published threads are never modified
// in place; every mutation produces a new Thread value with fresh slices.
type Thread struct {
	ID       string                               `json:"id" yaml:"id"`
	Name     string                               `json:"name" yaml:"name"`
	Model    models.ModelID                       `json:"model" yaml:"model"`
	Messages []Message                            `json:"messages" yaml:"messages"`
	Tokens   map[models.ModelID]models.TokenCount `json:"tokens,omitempty" yaml:"tokens,omitempty"`
}

func (t *Thread) LastMessage() (Message, bool) {
	if t == nil || len(t.Messages) == 0 {
		return Message{}, false
	}
	return t.Messages[len(t.Messages)-1], true
}

// Copy returns a shallow copy of the thread with its own Messages slice and
// Tokens map, suitable as the base of an immutable update.
func (t *Thread) Copy() *Thread {
	ret := *t
	ret.Messages = make([]Message, len(t.Messages))
	copy(ret.Messages, t.Messages)
	ret.Tokens = make(map[models.ModelID]models.TokenCount, len(t.Tokens))
	for k, v := range t.Tokens {
		ret.Tokens[k] = v
	}
	return &ret
}

func (t *Thread) Cost() float64 {
	if t == nil {
		return 0
	}
	return models.Cost(t.Tokens)
}
