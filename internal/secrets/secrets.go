// Package secrets looks up named credentials from the environment, AWS
// Secrets Manager or Azure Key Vault.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/hri/contact-sync/internal/config"
)

// ErrNotFound is returned when a secret has no value.
var ErrNotFound = errors.New("secret not found")

// Provider resolves a secret by name.
type Provider interface {
	Get(ctx context.Context, name string) (string, error)
}

// New builds the provider selected by cfg.Provider.
func New(ctx context.Context, cfg config.SecretsConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "env":
		return Env{}, nil
	case "aws":
		return NewAWS(ctx, cfg.Region)
	case "azure":
		return NewAzure(cfg.VaultURL)
	default:
		return nil, fmt.Errorf("unknown secrets provider %q", cfg.Provider)
	}
}

// Env reads secrets from environment variables. Key Vault style names
// (dashes) are also tried with underscores.
type Env struct{}

func (Env) Get(_ context.Context, name string) (string, error) {
	for _, key := range []string{name, strings.ReplaceAll(name, "-", "_")} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%s: %w", name, ErrNotFound)
}

// SecretsManagerAPI is the subset of *secretsmanager.Client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWS reads secrets from AWS Secrets Manager.
type AWS struct {
	client SecretsManagerAPI
}

// NewAWS loads the default AWS config for region.
func NewAWS(ctx context.Context, region string) (*AWS, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &AWS{client: secretsmanager.NewFromConfig(cfg)}, nil
}

// NewAWSWithClient wraps an existing client.
func NewAWSWithClient(client SecretsManagerAPI) *AWS { return &AWS{client: client} }

func (a *AWS) Get(ctx context.Context, name string) (string, error) {
	out, err := a.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("secrets manager %s: %w", name, err)
	}
	v := aws.ToString(out.SecretString)
	if v == "" {
		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return v, nil
}

// KeyVaultAPI is the subset of *azsecrets.Client used here.
type KeyVaultAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// Azure reads the latest version of secrets from Azure Key Vault.
type Azure struct {
	client KeyVaultAPI
}

// NewAzure authenticates with the default Azure credential chain.
func NewAzure(vaultURL string) (*Azure, error) {
	if vaultURL == "" {
		return nil, errors.New("azure key vault url is required")
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}
	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("key vault client: %w", err)
	}
	return &Azure{client: client}, nil
}

// NewAzureWithClient wraps an existing client.
func NewAzureWithClient(client KeyVaultAPI) *Azure { return &Azure{client: client} }

func (a *Azure) Get(ctx context.Context, name string) (string, error) {
	resp, err := a.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		return "", fmt.Errorf("key vault %s: %w", name, err)
	}
	if resp.Value == nil || *resp.Value == "" {
		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return *resp.Value, nil
}
