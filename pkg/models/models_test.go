package models

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_KnownModel(t *testing.T) {
	md, err := Lookup(GPT4oMini)
	require.NoError(t, err)

	assert.Equal(t, GPT4oMini, md.ID)
	assert.Equal(t, ProviderOpenAI, md.Provider)
	assert.False(t, md.SupportsDocs)
	assert.Equal(t, 0.15, md.Pricing.Input)
}

func TestLookup_UnknownModel(t *testing.T) {
	_, err := Lookup("llama-7b")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownModel))
}

func TestAll_ContainsCatalogue(t *testing.T) {
	all := All()
	require.Len(t, all, 7)

	providers := map[Provider]int{}
	for _, md := range all {
		assert.NotEmpty(t, md.ID)
		providers[md.Provider]++
	}
	assert.Equal(t, 5, providers[ProviderAmazonBedrock])
	assert.Equal(t, 2, providers[ProviderOpenAI])
}

func TestCost(t *testing.T) {
	cost := Cost(map[ModelID]TokenCount{
		Claude3Haiku: {Input: 1_000_000, Output: 2_000_000},
		GPT4o:        {Input: 400_000},
		"unknown":    {Input: 10, Output: 10},
	})

	// 0.25 + 2*1.25 + 0.4*2.5
	assert.InDelta(t, 3.75, cost, 1e-9)
}

func TestTokenCount_Add(t *testing.T) {
	c := TokenCount{Input: 1, Output: 2}.Add(10, 20)
	assert.Equal(t, TokenCount{Input: 11, Output: 22}, c)
}
