// Package credentials resolves the AWS credentials the chat engine needs and
// looks up provider API keys stored in AWS Secrets Manager.
package credentials

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultProfile = "default"

// Hint tells the provider where to look. It mirrors the user's preferences:
// either a named shared profile or a static access key pair.
type Hint struct {
	UseProfile      bool
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
}

// Provider resolves credentials. A nil result with a nil error means no
// credentials are configured.
type Provider interface {
	Resolve(ctx context.Context, hint Hint) (*aws.Credentials, error)
}

type AWSProvider struct {
	Region string
}

var _ Provider = (*AWSProvider)(nil)

func NewAWSProvider(region string) *AWSProvider {
	return &AWSProvider{Region: region}
}

func (p *AWSProvider) Resolve(ctx context.Context, hint Hint) (*aws.Credentials, error) {
	if hint.UseProfile {
		profile := hint.Profile
		if profile == "" {
			profile = DefaultProfile
		}
		log.Debug().Str("profile", profile).Msg("Resolving credentials from shared profile")
		cfg, err := config.LoadDefaultConfig(ctx,
			config.WithRegion(p.Region),
			config.WithSharedConfigProfile(profile),
		)
		if err != nil {
			return nil, errors.Wrapf(err, "could not load profile %s", profile)
		}
		if cfg.Credentials == nil {
			return nil, nil
		}
		creds, err := cfg.Credentials.Retrieve(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "could not retrieve credentials for profile %s", profile)
		}
		return &creds, nil
	}

	if hint.AccessKeyID == "" || hint.SecretAccessKey == "" {
		log.Debug().Msg("No static credentials configured")
		return nil, nil
	}
	creds, err := awscreds.NewStaticCredentialsProvider(hint.AccessKeyID, hint.SecretAccessKey, "").Retrieve(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not use static credentials")
	}
	return &creds, nil
}

// StaticConfig builds an aws.Config for region that always uses creds.
func StaticConfig(region string, creds aws.Credentials) aws.Config {
	return aws.Config{
		Region:      region,
		Credentials: awscreds.StaticCredentialsProvider{Value: creds},
	}
}
