// Package settings holds the application settings of ai-threads. They come
// from flags, the environment and the config file through viper. Per-user
// preferences such as credentials live in the store instead.
package settings

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-go-golems/ai-threads/pkg/credentials"
	"github.com/go-go-golems/ai-threads/pkg/models"
	"github.com/go-go-golems/ai-threads/pkg/store"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const AppName = "ai-threads"

const DefaultRegion = "us-west-2"

type Settings struct {
	Region        string         `yaml:"region" mapstructure:"region"`
	SecretID      string         `yaml:"secret-id" mapstructure:"secret-id"`
	DefaultModel  models.ModelID `yaml:"default-model" mapstructure:"default-model"`
	NamingModel   models.ModelID `yaml:"naming-model" mapstructure:"naming-model"`
	DB            string         `yaml:"db" mapstructure:"db"`
	StoreKey      string         `yaml:"store-key" mapstructure:"store-key"`
	OpenAIBaseURL string         `yaml:"openai-base-url,omitempty" mapstructure:"openai-base-url"`

	NamingTimeout time.Duration `yaml:"naming-timeout" mapstructure:"naming-timeout"`
	// RequestTimeout bounds credential resolution and stream setup. Zero
	// leaves it to the transport.
	RequestTimeout time.Duration `yaml:"request-timeout" mapstructure:"request-timeout"`
}

func New() *Settings {
	return &Settings{
		Region:        DefaultRegion,
		SecretID:      credentials.DefaultSecretID,
		DefaultModel:  models.DefaultModel,
		NamingModel:   models.Claude3Sonnet,
		DB:            DefaultDBPath(),
		StoreKey:      store.DefaultKey,
		NamingTimeout: store.DefaultNamingTimeout,
	}
}

// DefaultDBPath is threads.db in the user's config directory, or in the
// working directory when there is none.
func DefaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "threads.db"
	}
	return filepath.Join(dir, AppName, "threads.db")
}

// SetDefaults registers the defaults with v so that they show up in
// v.AllSettings.
func SetDefaults(v *viper.Viper) {
	d := New()
	v.SetDefault("region", d.Region)
	v.SetDefault("secret-id", d.SecretID)
	v.SetDefault("default-model", string(d.DefaultModel))
	v.SetDefault("naming-model", string(d.NamingModel))
	v.SetDefault("db", d.DB)
	v.SetDefault("store-key", d.StoreKey)
	v.SetDefault("naming-timeout", d.NamingTimeout)
	v.SetDefault("request-timeout", d.RequestTimeout)
	v.SetDefault("openai-base-url", "")
}

func NewFromViper(v *viper.Viper) (*Settings, error) {
	s := New()
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "could not decode settings")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	if s.Region == "" {
		return errors.New("region must not be empty")
	}
	if !models.Known(s.DefaultModel) {
		return errors.Wrapf(models.ErrUnknownModel, "default-model %q", s.DefaultModel)
	}
	if !models.Known(s.NamingModel) {
		return errors.Wrapf(models.ErrUnknownModel, "naming-model %q", s.NamingModel)
	}
	if s.NamingTimeout < 0 || s.RequestTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}
