package credentials

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultSecretID = "ai-threads/api-keys"

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type SecretLookup interface {
	// GetAPIKey returns the key for providerName. An empty string with a nil
	// error means the secret holds no key for that provider.
	GetAPIKey(ctx context.Context, providerName string, creds aws.Credentials, override string) (string, error)
}

// SecretsManagerLookup reads a JSON object secret keyed by provider name.
type SecretsManagerLookup struct {
	Region   string
	SecretID string

	newClient func(cfg aws.Config) SecretsAPI
}

var _ SecretLookup = (*SecretsManagerLookup)(nil)

type SecretsManagerLookupOption func(*SecretsManagerLookup)

func WithSecretsClient(f func(cfg aws.Config) SecretsAPI) SecretsManagerLookupOption {
	return func(s *SecretsManagerLookup) {
		s.newClient = f
	}
}

func NewSecretsManagerLookup(region, secretID string, options ...SecretsManagerLookupOption) *SecretsManagerLookup {
	if secretID == "" {
		secretID = DefaultSecretID
	}
	ret := &SecretsManagerLookup{
		Region:   region,
		SecretID: secretID,
		newClient: func(cfg aws.Config) SecretsAPI {
			return secretsmanager.NewFromConfig(cfg)
		},
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (s *SecretsManagerLookup) GetAPIKey(ctx context.Context, providerName string, creds aws.Credentials, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	client := s.newClient(StaticConfig(s.Region, creds))
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.SecretID),
	})
	if err != nil {
		return "", errors.Wrapf(err, "could not read secret %s", s.SecretID)
	}
	if out.SecretString == nil {
		log.Warn().Str("secret_id", s.SecretID).Msg("Secret has no string value")
		return "", nil
	}

	keys := map[string]string{}
	if err := json.Unmarshal([]byte(*out.SecretString), &keys); err != nil {
		return "", errors.Wrapf(err, "secret %s is not a JSON object", s.SecretID)
	}
	return keys[providerName], nil
}
