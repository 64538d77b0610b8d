package mainconfig

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/medspa-winback/internal/config"
)

func TestLoadAWSConfigEndpointOverride(t *testing.T) {
	cfg := &appconfig.Config{
		AWSRegion:           "us-east-1",
		AWSAccessKeyID:      "test",
		AWSSecretAccessKey:  "test",
		AWSEndpointOverride: "http://localhost:4566",
	}
	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, awsCfg.EndpointResolverWithOptions)

	for _, service := range []string{s3.ServiceID, sesv2.ServiceID} {
		endpoint, err := awsCfg.EndpointResolverWithOptions.ResolveEndpoint(service, "us-east-1")
		require.NoError(t, err, service)
		assert.Equal(t, "http://localhost:4566", endpoint.URL)
	}

	_, err = awsCfg.EndpointResolverWithOptions.ResolveEndpoint("sqs", "us-east-1")
	assert.Error(t, err)

	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test", creds.AccessKeyID)
}

func TestLoadAWSConfigWithoutOverride(t *testing.T) {
	awsCfg, err := LoadAWSConfig(context.Background(), &appconfig.Config{AWSRegion: "eu-west-1"})
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", awsCfg.Region)
	assert.Nil(t, awsCfg.EndpointResolverWithOptions)
}
