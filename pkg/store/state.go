package store

import (
	"github.com/go-go-golems/ai-threads/pkg/conversation"
	"github.com/go-go-golems/ai-threads/pkg/models"
)

// Preferences are the user settings that travel with the persisted store.
type Preferences struct {
	UseCredentialProfile bool           `json:"useAwsCredProfile" yaml:"use-credential-profile"`
	CredentialProfile    string         `json:"awsCredProfile,omitempty" yaml:"credential-profile,omitempty"`
	AccessKeyID          string         `json:"accessKeyId,omitempty" yaml:"access-key-id,omitempty"`
	SecretAccessKey      string         `json:"secretAccessKey,omitempty" yaml:"-"`
	OpenAIKey            string         `json:"openAIKey,omitempty" yaml:"-"`
	DefaultModel         models.ModelID `json:"defaultModel,omitempty" yaml:"default-model,omitempty"`
}

// State is an immutable view of the store. A nil entry in Threads is a
// deleted thread whose key is kept.
type State struct {
	HasHydrated bool
	Threads     map[string]*conversation.Thread
	Order       []string
	Tokens      map[models.ModelID]models.TokenCount
	Preferences Preferences
}

// TokenInfo is the usage of the request that produced a message.
type TokenInfo struct {
	Model  models.ModelID
	Input  int
	Output int
}

// Cost is the aggregate cost of the global token totals.
func (s State) Cost() float64 {
	return models.Cost(s.Tokens)
}

func (s State) copyThreads() map[string]*conversation.Thread {
	ret := make(map[string]*conversation.Thread, len(s.Threads)+1)
	for k, v := range s.Threads {
		ret[k] = v
	}
	return ret
}

func (s State) copyTokens() map[models.ModelID]models.TokenCount {
	ret := make(map[models.ModelID]models.TokenCount, len(s.Tokens)+1)
	for k, v := range s.Tokens {
		ret[k] = v
	}
	return ret
}

// persistedState is the serialized subset of the store.
type persistedState struct {
	State struct {
		Threads     map[string]*conversation.Thread      `json:"threads"`
		Order       []string                             `json:"order,omitempty"`
		Tokens      map[models.ModelID]models.TokenCount `json:"tokens,omitempty"`
		Preferences Preferences                          `json:"prefs"`
	} `json:"state"`
	Version int `json:"version"`
}

const persistVersion = 1
