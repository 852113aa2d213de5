package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/hri/contact-sync/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvProvider(t *testing.T) {
	t.Setenv("API_TOKEN_ActiveCampaign", " tok-123 ")
	t.Setenv("SP_Password", "pw")

	v, err := Env{}.Get(context.Background(), "API_TOKEN_ActiveCampaign")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", v)

	v, err = Env{}.Get(context.Background(), "SP-Password")
	require.NoError(t, err)
	assert.Equal(t, "pw", v)

	_, err = Env{}.Get(context.Background(), "MISSING_SECRET_FOR_TEST")
	assert.ErrorIs(t, err, ErrNotFound)
}

type fakeSecretsManager struct {
	values map[string]string
}

func (f fakeSecretsManager) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	v, ok := f.values[aws.ToString(in.SecretId)]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestAWSProvider(t *testing.T) {
	p := NewAWSWithClient(fakeSecretsManager{values: map[string]string{"ac/token": "abc", "empty": ""}})

	v, err := p.Get(context.Background(), "ac/token")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	_, err = p.Get(context.Background(), "empty")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = p.Get(context.Background(), "nope")
	assert.Error(t, err)
}

type fakeKeyVault struct {
	values map[string]string
}

func (f fakeKeyVault) GetSecret(ctx context.Context, name, version string, _ *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	var resp azsecrets.GetSecretResponse
	if v, ok := f.values[name]; ok {
		resp.Value = &v
	}
	return resp, nil
}

func TestAzureProvider(t *testing.T) {
	p := NewAzureWithClient(fakeKeyVault{values: map[string]string{"API-TOKEN-ActiveCampaign": "kv-token"}})

	v, err := p.Get(context.Background(), "API-TOKEN-ActiveCampaign")
	require.NoError(t, err)
	assert.Equal(t, "kv-token", v)

	_, err = p.Get(context.Background(), "other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewSelectsProvider(t *testing.T) {
	p, err := New(context.Background(), config.SecretsConfig{Provider: "env"})
	require.NoError(t, err)
	assert.IsType(t, Env{}, p)

	_, err = New(context.Background(), config.SecretsConfig{Provider: "vault"})
	assert.Error(t, err)

	_, err = New(context.Background(), config.SecretsConfig{Provider: "azure"})
	assert.Error(t, err, "vault url required")
}
