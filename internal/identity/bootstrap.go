package identity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// BootstrapKeys is the long-lived keypair used only to start a role chain.
// It is never handed to callers.
type BootstrapKeys struct {
	AccessKey string
	SecretKey string
}

// SecretSource fetches the bootstrap keypair from a secret store.
type SecretSource interface {
	Fetch(ctx context.Context) (BootstrapKeys, error)
}

type ssmAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMSecretSource reads the keypair from two SecureString parameters in
// Parameter Store. This is the default backend.
type SSMSecretSource struct {
	client     ssmAPI
	accessName string
	secretName string
}

func NewSSMSecretSource(client ssmAPI, accessName, secretName string) *SSMSecretSource {
	return &SSMSecretSource{client: client, accessName: accessName, secretName: secretName}
}

func (s *SSMSecretSource) Fetch(ctx context.Context) (BootstrapKeys, error) {
	access, err := s.getParameter(ctx, s.accessName)
	if err != nil {
		return BootstrapKeys{}, fmt.Errorf("%w: %v", ErrBootstrapUnavailable, err)
	}
	secret, err := s.getParameter(ctx, s.secretName)
	if err != nil {
		return BootstrapKeys{}, fmt.Errorf("%w: %v", ErrBootstrapUnavailable, err)
	}
	if access == "" || secret == "" {
		return BootstrapKeys{}, fmt.Errorf("%w: empty parameter value", ErrBootstrapUnavailable)
	}
	return BootstrapKeys{AccessKey: access, SecretKey: secret}, nil
}

func (s *SSMSecretSource) getParameter(ctx context.Context, name string) (string, error) {
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("GetParameter(%s): %w", name, err)
	}
	if out.Parameter == nil {
		return "", fmt.Errorf("GetParameter(%s): empty response", name)
	}
	return aws.ToString(out.Parameter.Value), nil
}

type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerSource reads the keypair from two Secrets Manager secrets.
// Alternate backend selected by config.
type SecretsManagerSource struct {
	client     secretsManagerAPI
	accessName string
	secretName string
}

func NewSecretsManagerSource(client secretsManagerAPI, accessName, secretName string) *SecretsManagerSource {
	return &SecretsManagerSource{client: client, accessName: accessName, secretName: secretName}
}

func (s *SecretsManagerSource) Fetch(ctx context.Context) (BootstrapKeys, error) {
	access, err := s.getSecret(ctx, s.accessName)
	if err != nil {
		return BootstrapKeys{}, fmt.Errorf("%w: %v", ErrBootstrapUnavailable, err)
	}
	secret, err := s.getSecret(ctx, s.secretName)
	if err != nil {
		return BootstrapKeys{}, fmt.Errorf("%w: %v", ErrBootstrapUnavailable, err)
	}
	if access == "" || secret == "" {
		return BootstrapKeys{}, fmt.Errorf("%w: empty secret value", ErrBootstrapUnavailable)
	}
	return BootstrapKeys{AccessKey: access, SecretKey: secret}, nil
}

func (s *SecretsManagerSource) getSecret(ctx context.Context, name string) (string, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &name,
	})
	if err != nil {
		return "", fmt.Errorf("GetSecretValue(%s): %w", name, err)
	}
	return aws.ToString(out.SecretString), nil
}
