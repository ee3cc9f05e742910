package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecretsAPI struct {
	values map[string]*string
	err    error
}

func (f *fakeSecretsAPI) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[aws.ToString(in.SecretId)]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: v}, nil
}

func TestGetSecret(t *testing.T) {
	p := &AWSSecretsManagerProvider{client: &fakeSecretsAPI{values: map[string]*string{
		"prod/ticker-bots": aws.String(`{"admin_user":"ops","admin_pass":"pw"}`),
		"prod/broken":      aws.String(`not json`),
		"prod/binary":      nil,
	}}}

	got, err := p.GetSecret(context.Background(), "prod/ticker-bots")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"admin_user": "ops", "admin_pass": "pw"}, got)

	_, err = p.GetSecret(context.Background(), "prod/broken")
	assert.ErrorContains(t, err, "invalid secret format")

	_, err = p.GetSecret(context.Background(), "prod/binary")
	assert.ErrorContains(t, err, "no string value")

	_, err = p.GetSecret(context.Background(), "prod/missing")
	assert.ErrorContains(t, err, "ResourceNotFoundException")
}
