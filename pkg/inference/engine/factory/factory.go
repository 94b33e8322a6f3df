package factory

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-go-golems/ai-threads/pkg/credentials"
	"github.com/go-go-golems/ai-threads/pkg/inference/engine"
	"github.com/go-go-golems/ai-threads/pkg/models"
	"github.com/go-go-golems/ai-threads/pkg/steps/ai/bedrock"
	"github.com/go-go-golems/ai-threads/pkg/steps/ai/openai"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// StandardAdapterFactory selects the adapter for a model from its provider in
// the model catalogue.
type StandardAdapterFactory struct {
	Region        string
	OpenAIBaseURL string
	Secrets       credentials.SecretLookup
}

var _ engine.Factory = (*StandardAdapterFactory)(nil)

type Option func(*StandardAdapterFactory)

func WithOpenAIBaseURL(url string) Option {
	return func(f *StandardAdapterFactory) {
		f.OpenAIBaseURL = url
	}
}

func NewStandardAdapterFactory(region string, secrets credentials.SecretLookup, options ...Option) *StandardAdapterFactory {
	ret := &StandardAdapterFactory{
		Region:  region,
		Secrets: secrets,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// SupportedProviders returns the providers this factory can build adapters for.
func (f *StandardAdapterFactory) SupportedProviders() []models.Provider {
	return []models.Provider{models.ProviderAmazonBedrock, models.ProviderOpenAI}
}

func (f *StandardAdapterFactory) Resolve(ctx context.Context, model models.ModelID, creds engine.Credentials) (engine.Adapter, error) {
	md, err := models.Lookup(model)
	if err != nil {
		return nil, errors.Wrap(engine.ErrUnsupportedModel, err.Error())
	}
	awsCreds := aws.Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
	}

	switch md.Provider {
	case models.ProviderAmazonBedrock:
		log.Debug().Str("model", string(model)).Str("region", f.Region).Msg("Using bedrock adapter")
		return bedrock.NewAdapterFromCredentials(f.Region, awsCreds), nil

	case models.ProviderOpenAI:
		if f.Secrets == nil {
			if creds.OpenAIKey == "" {
				return nil, engine.ErrMissingAPIKey
			}
			return openai.NewAdapter(openai.MakeClient(creds.OpenAIKey, f.OpenAIBaseURL)), nil
		}
		key, err := f.Secrets.GetAPIKey(ctx, string(models.ProviderOpenAI), awsCreds, creds.OpenAIKey)
		if err != nil {
			log.Warn().Err(err).Msg("API key lookup failed")
			return nil, errors.Wrap(engine.ErrMissingAPIKey, err.Error())
		}
		if key == "" {
			return nil, engine.ErrMissingAPIKey
		}
		log.Debug().Str("model", string(model)).Msg("Using openai adapter")
		return openai.NewAdapter(openai.MakeClient(key, f.OpenAIBaseURL)), nil

	default:
		return nil, errors.Wrapf(engine.ErrUnsupportedModel, "provider %s", md.Provider)
	}
}
