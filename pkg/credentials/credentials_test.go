package credentials

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAWSProvider_Static(t *testing.T) {
	p := NewAWSProvider("us-west-2")
	creds, err := p.Resolve(context.Background(), Hint{AccessKeyID: "AKID", SecretAccessKey: "SECRET"})
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.Equal(t, "AKID", creds.AccessKeyID)
	assert.Equal(t, "SECRET", creds.SecretAccessKey)
}

func TestAWSProvider_NothingConfigured(t *testing.T) {
	p := NewAWSProvider("us-west-2")
	creds, err := p.Resolve(context.Background(), Hint{AccessKeyID: "AKID"})
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestAWSProvider_SharedProfile(t *testing.T) {
	dir := t.TempDir()
	credsFile := filepath.Join(dir, "credentials")
	configFile := filepath.Join(dir, "config")
	require.NoError(t, os.WriteFile(credsFile, []byte("[work]\naws_access_key_id = PROFILEKEY\naws_secret_access_key = PROFILESECRET\n"), 0o600))
	require.NoError(t, os.WriteFile(configFile, []byte("[profile work]\nregion = us-west-2\n"), 0o600))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", credsFile)
	t.Setenv("AWS_CONFIG_FILE", configFile)
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	t.Setenv("AWS_PROFILE", "")

	p := NewAWSProvider("us-west-2")
	creds, err := p.Resolve(context.Background(), Hint{UseProfile: true, Profile: "work"})
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.Equal(t, "PROFILEKEY", creds.AccessKeyID)
}

type fakeSecrets struct {
	calls  int
	secret *string
	err    error
}

func (f *fakeSecrets) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.secret}, nil
}

func newLookup(f *fakeSecrets) *SecretsManagerLookup {
	return NewSecretsManagerLookup("us-west-2", "", WithSecretsClient(func(cfg aws.Config) SecretsAPI {
		return f
	}))
}

func TestSecretLookup_OverrideShortCircuits(t *testing.T) {
	f := &fakeSecrets{}
	key, err := newLookup(f).GetAPIKey(context.Background(), "openai", aws.Credentials{}, "sk-override")
	require.NoError(t, err)
	assert.Equal(t, "sk-override", key)
	assert.Equal(t, 0, f.calls)
}

func TestSecretLookup_ReadsProviderKey(t *testing.T) {
	f := &fakeSecrets{secret: aws.String(`{"openai":"sk-123","other":"x"}`)}
	l := newLookup(f)
	assert.Equal(t, DefaultSecretID, l.SecretID)

	key, err := l.GetAPIKey(context.Background(), "openai", aws.Credentials{AccessKeyID: "a"}, "")
	require.NoError(t, err)
	assert.Equal(t, "sk-123", key)

	key, err = l.GetAPIKey(context.Background(), "missing", aws.Credentials{}, "")
	require.NoError(t, err)
	assert.Equal(t, "", key)
}

func TestSecretLookup_Errors(t *testing.T) {
	f := &fakeSecrets{err: errors.New("denied")}
	_, err := newLookup(f).GetAPIKey(context.Background(), "openai", aws.Credentials{}, "")
	assert.Error(t, err)

	f = &fakeSecrets{secret: aws.String("not json")}
	_, err = newLookup(f).GetAPIKey(context.Background(), "openai", aws.Credentials{}, "")
	assert.Error(t, err)
}
