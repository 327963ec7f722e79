package config

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSSMClient struct {
	values  map[string]string
	invalid []string
	err     error
	batches [][]string
}

func (f *fakeSSMClient) GetParameters(_ context.Context, in *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	f.batches = append(f.batches, in.Names)
	if f.err != nil {
		return nil, f.err
	}
	out := &ssm.GetParametersOutput{InvalidParameters: f.invalid}
	for _, name := range in.Names {
		if v, ok := f.values[name]; ok {
			out.Parameters = append(out.Parameters, ssmtypes.Parameter{Name: aws.String(name), Value: aws.String(v)})
		}
	}
	return out, nil
}

func TestSSMProvider_SatisfiesSecretProvider(t *testing.T) {
	var _ SecretProvider = NewSSMProvider("us-east-1")
}

func TestSSMProvider_EmptyKeys(t *testing.T) {
	client := &fakeSSMClient{}
	got, err := newSSMProviderWithClient("us-east-1", client).GetParametersBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, client.batches)
}

func TestSSMProvider_BatchesOfTen(t *testing.T) {
	values := make(map[string]string)
	keys := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		k := fmt.Sprintf("/dev/climatewatch/p%d", i)
		keys = append(keys, k)
		values[k] = fmt.Sprintf("v%d", i)
	}
	client := &fakeSSMClient{values: values}

	got, err := newSSMProviderWithClient("us-east-1", client).GetParametersBatch(context.Background(), keys)
	require.NoError(t, err)
	assert.Len(t, got, 12)
	require.Len(t, client.batches, 2)
	assert.Len(t, client.batches[0], 10)
	assert.Len(t, client.batches[1], 2)
}

func TestSSMProvider_InvalidParameters(t *testing.T) {
	client := &fakeSSMClient{invalid: []string{"/dev/missing"}}
	_, err := newSSMProviderWithClient("us-east-1", client).GetParametersBatch(context.Background(), []string{"/dev/missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/dev/missing")
}

func TestSSMProvider_ClientError(t *testing.T) {
	boom := errors.New("AccessDenied")
	client := &fakeSSMClient{err: boom}
	_, err := newSSMProviderWithClient("us-east-1", client).GetParametersBatch(context.Background(), []string{"/dev/a"})
	assert.ErrorIs(t, err, boom)
}

func TestSSMProvider_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &fakeSSMClient{}
	_, err := newSSMProviderWithClient("us-east-1", client).GetParametersBatch(ctx, []string{"/dev/a"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.batches)
}
