package models

import (
	"sort"

	"github.com/pkg/errors"
)

// ModelID is the provider-side identifier of a chat model.
type ModelID string

const (
	Claude35Haiku   ModelID = "anthropic.claude-3-5-haiku-20241022-v1:0"
	Claude35Sonnet  ModelID = "anthropic.claude-3-5-sonnet-20240620-v1:0"
	Claude35Sonnet2 ModelID = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	Claude3Haiku    ModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	Claude3Sonnet   ModelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	GPT4o           ModelID = "gpt-4o"
	GPT4oMini       ModelID = "gpt-4o-mini"
)

// DefaultModel is used for new threads when nothing else is configured.
const DefaultModel = Claude3Haiku

type Provider string

const (
	ProviderAmazonBedrock Provider = "amazon-bedrock"
	ProviderOpenAI        Provider = "openai"
)

// Pricing is expressed in USD per one million tokens.
type Pricing struct {
	Input  float64 `json:"input" yaml:"input"`
	Output float64 `json:"output" yaml:"output"`
}

type Metadata struct {
	ID           ModelID  `json:"id" yaml:"id"`
	Label        string   `json:"label" yaml:"label"`
	Provider     Provider `json:"provider" yaml:"provider"`
	Pricing      Pricing  `json:"pricing" yaml:"pricing"`
	SupportsDocs bool     `json:"supportsDocs" yaml:"supports_docs"`
}

var ErrUnknownModel = errors.New("unknown model")

var catalogue = map[ModelID]Metadata{
	Claude35Haiku: {
		Label:        "Claude 3.5 Haiku",
		Provider:     ProviderAmazonBedrock,
		Pricing:      Pricing{Input: 1, Output: 1.5},
		SupportsDocs: true,
	},
	Claude35Sonnet: {
		Label:    "Claude 3.5 Sonnet",
		Provider: ProviderAmazonBedrock,
		Pricing:  Pricing{Input: 3, Output: 15},
	},
	Claude35Sonnet2: {
		Label:    "Claude 3.5 Sonnet v2",
		Provider: ProviderAmazonBedrock,
		Pricing:  Pricing{Input: 3, Output: 15},
	},
	Claude3Haiku: {
		Label:        "Claude 3 Haiku",
		Provider:     ProviderAmazonBedrock,
		Pricing:      Pricing{Input: 0.25, Output: 1.25},
		SupportsDocs: true,
	},
	Claude3Sonnet: {
		Label:        "Claude 3 Sonnet",
		Provider:     ProviderAmazonBedrock,
		Pricing:      Pricing{Input: 3, Output: 15},
		SupportsDocs: true,
	},
	GPT4o: {
		Label:    "GPT-4o",
		Provider: ProviderOpenAI,
		Pricing:  Pricing{Input: 2.5, Output: 10},
	},
	GPT4oMini: {
		Label:    "GPT-4o mini",
		Provider: ProviderOpenAI,
		Pricing:  Pricing{Input: 0.15, Output: 0.6},
	},
}

// Lookup returns the static metadata for a model.
func Lookup(id ModelID) (Metadata, error) {
	md, ok := catalogue[id]
	if !ok {
		return Metadata{}, errors.Wrapf(ErrUnknownModel, "model %q", id)
	}
	md.ID = id
	return md, nil
}

func Known(id ModelID) bool {
	_, ok := catalogue[id]
	return ok
}

// All returns every known model sorted by provider and label.
func All() []Metadata {
	ret := make([]Metadata, 0, len(catalogue))
	for id, md := range catalogue {
		md.ID = id
		ret = append(ret, md)
	}
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].Provider != ret[j].Provider {
			return ret[i].Provider < ret[j].Provider
		}
		return ret[i].Label < ret[j].Label
	})
	return ret
}

// TokenCount is a running input/output token total.
type TokenCount struct {
	Input  int `json:"input" yaml:"input"`
	Output int `json:"output" yaml:"output"`
}

func (t TokenCount) Add(input, output int) TokenCount {
	return TokenCount{Input: t.Input + input, Output: t.Output + output}
}

// Cost computes the USD cost of the given per-model token totals.
// Unknown models contribute nothing.
func Cost(tokens map[ModelID]TokenCount) float64 {
	cost := 0.0
	for id, count := range tokens {
		md, ok := catalogue[id]
		if !ok {
			continue
		}
		cost += md.Pricing.Input*float64(count.Input)/1_000_000 +
			md.Pricing.Output*float64(count.Output)/1_000_000
	}
	return cost
}
