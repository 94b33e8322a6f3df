package settings

import (
	"bytes"
	"testing"
	"time"

	"github.com/go-go-golems/ai-threads/pkg/models"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromViper_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	s, err := NewFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, DefaultRegion, s.Region)
	assert.Equal(t, "ai-threads/api-keys", s.SecretID)
	assert.Equal(t, models.Claude3Haiku, s.DefaultModel)
	assert.Equal(t, models.Claude3Sonnet, s.NamingModel)
	assert.Equal(t, "bedrock-threads", s.StoreKey)
	assert.Equal(t, 30*time.Second, s.NamingTimeout)
	assert.Zero(t, s.RequestTimeout)
}

func TestNewFromViper_ConfigFile(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(`
region: eu-central-1
default-model: gpt-4o-mini
request-timeout: 45s
db: /tmp/threads.db
`)))

	s, err := NewFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "eu-central-1", s.Region)
	assert.Equal(t, models.GPT4oMini, s.DefaultModel)
	assert.Equal(t, 45*time.Second, s.RequestTimeout)
	assert.Equal(t, "/tmp/threads.db", s.DB)
	assert.Equal(t, models.Claude3Sonnet, s.NamingModel)
}

func TestNewFromViper_UnknownModel(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("naming-model", "gpt-2")

	_, err := NewFromViper(v)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUnknownModel))
}

func TestSettings_Clone(t *testing.T) {
	s := New()
	c := s.Clone()
	c.Region = "ap-south-1"
	assert.Equal(t, DefaultRegion, s.Region)
	assert.NotSame(t, s, c)
}
