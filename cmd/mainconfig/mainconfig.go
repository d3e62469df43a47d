// Package mainconfig holds the client construction shared by the binaries.
package mainconfig

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/leadflow/internal/config"
)

// LoadAWSConfig centralizes AWS SDK initialization so every binary shares the
// same LocalStack/production wiring.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	return config.LoadDefaultConfig(ctx, loaders...)
}

// SQSClient honours AWS_ENDPOINT_OVERRIDE for local queues.
func SQSClient(awsCfg aws.Config, cfg *appconfig.Config) *sqs.Client {
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint := endpointOverride(cfg); endpoint != nil {
			o.BaseEndpoint = endpoint
		}
	})
}

// SESClient honours AWS_ENDPOINT_OVERRIDE for local mail capture.
func SESClient(awsCfg aws.Config, cfg *appconfig.Config) *sesv2.Client {
	return sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if endpoint := endpointOverride(cfg); endpoint != nil {
			o.BaseEndpoint = endpoint
		}
	})
}

// BedrockClient always talks to the real regional endpoint; LocalStack has
// no Bedrock runtime.
func BedrockClient(awsCfg aws.Config) *bedrockruntime.Client {
	return bedrockruntime.NewFromConfig(awsCfg)
}

func endpointOverride(cfg *appconfig.Config) *string {
	if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
		return aws.String(endpoint)
	}
	return nil
}

// RedisClient builds the client used for sessions and the monitor stream.
func RedisClient(cfg *appconfig.Config) *redis.Client {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}
