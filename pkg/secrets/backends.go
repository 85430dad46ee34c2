package secrets

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	vault "github.com/hashicorp/vault/api"
)

// Config selects the backend behind "secret:" references. An empty type reads the environment.
type Config struct {
	Type  string      `yaml:"type" json:"type"` // env, vault, openbao, aws, azure
	Vault VaultConfig `yaml:"vault" json:"vault"`
	AWS   AWSConfig   `yaml:"aws" json:"aws"`
	Azure AzureConfig `yaml:"azure" json:"azure"`
	Env   EnvConfig   `yaml:"env" json:"env"`
}

// VaultConfig also serves OpenBao, which speaks the same KV v2 API.
type VaultConfig struct {
	Address string `yaml:"address" json:"address"`
	Token   string `yaml:"token" json:"token"`
	Mount   string `yaml:"mount" json:"mount"`
}

type AWSConfig struct {
	Region string `yaml:"region" json:"region"`
}

type AzureConfig struct {
	VaultURL string `yaml:"vault_url" json:"vault_url"`
}

type EnvConfig struct {
	Prefix string `yaml:"prefix" json:"prefix"`
}

// NewManager builds the configured backend.
func NewManager(ctx context.Context, cfg Config) (Manager, error) {
	switch cfg.Type {
	case "", "env":
		return &EnvManager{Prefix: cfg.Env.Prefix}, nil
	case "vault", "openbao":
		return newVaultManager(cfg.Vault)
	case "aws":
		return newAWSManager(ctx, cfg.AWS)
	case "azure":
		return newAzureManager(cfg.Azure)
	default:
		return nil, fmt.Errorf("unsupported secret manager type: %s", cfg.Type)
	}
}

// vaultManager reads KV v2 secrets. A reference without a field reads the "value" member.
type vaultManager struct {
	client *vault.Client
	mount  string
}

func newVaultManager(cfg VaultConfig) (*vaultManager, error) {
	vc := vault.DefaultConfig()
	vc.Address = cfg.Address
	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}
	return &vaultManager{client: client, mount: mount}, nil
}

func (m *vaultManager) Get(ctx context.Context, ref Reference) (string, error) {
	secret, err := m.client.Logical().ReadWithContext(ctx, m.mount+"/data/"+ref.Key)
	if err != nil {
		return "", fmt.Errorf("failed to read secret %s from vault: %w", ref.Key, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref.Key)
	}
	data, ok := secret.Data["data"].(map[string]any)
	if !ok {
		return "", fmt.Errorf("secret %s is not a KV v2 entry", ref.Key)
	}
	name := ref.Field
	if name == "" {
		name = "value"
	}
	val, ok := data[name]
	if !ok {
		return "", fmt.Errorf("%w: field %s in %s", ErrNotFound, name, ref.Key)
	}
	return fmt.Sprint(val), nil
}

// awsManager reads Secrets Manager string secrets; the key may be a name or an ARN.
type awsManager struct {
	client *secretsmanager.Client
}

func newAWSManager(ctx context.Context, cfg AWSConfig) (*awsManager, error) {
	ac, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}
	return &awsManager{client: secretsmanager.NewFromConfig(ac)}, nil
}

func (m *awsManager) Get(ctx context.Context, ref Reference) (string, error) {
	out, err := m.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(ref.Key)})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s from aws: %w", ref.Key, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", ref.Key)
	}
	return field(*out.SecretString, ref)
}

// azureManager reads the latest version of a Key Vault secret.
type azureManager struct {
	client *azsecrets.Client
}

func newAzureManager(cfg AzureConfig) (*azureManager, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure credential: %w", err)
	}
	client, err := azsecrets.NewClient(cfg.VaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure secrets client: %w", err)
	}
	return &azureManager{client: client}, nil
}

func (m *azureManager) Get(ctx context.Context, ref Reference) (string, error) {
	resp, err := m.client.GetSecret(ctx, ref.Key, "", nil)
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s from azure: %w", ref.Key, err)
	}
	if resp.Value == nil {
		return "", fmt.Errorf("secret %s has no value", ref.Key)
	}
	return field(*resp.Value, ref)
}
