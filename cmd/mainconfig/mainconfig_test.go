package mainconfig

import (
	"context"
	"testing"

	appconfig "github.com/wolfman30/leadflow/internal/config"
)

func TestLoadAWSConfigStaticCredentials(t *testing.T) {
	cfg := &appconfig.Config{
		AWSRegion:           "us-west-2",
		AWSAccessKeyID:      "test",
		AWSSecretAccessKey:  "secret",
		AWSEndpointOverride: "http://localhost:4566",
	}
	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if awsCfg.Region != "us-west-2" {
		t.Fatalf("unexpected region %q", awsCfg.Region)
	}
	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("retrieve credentials: %v", err)
	}
	if creds.AccessKeyID != "test" {
		t.Fatalf("expected static credentials, got %q", creds.AccessKeyID)
	}

	if got := endpointOverride(cfg); got == nil || *got != "http://localhost:4566" {
		t.Fatalf("expected endpoint override, got %v", got)
	}
	if SQSClient(awsCfg, cfg) == nil || SESClient(awsCfg, cfg) == nil {
		t.Fatalf("expected clients")
	}
}

func TestEndpointOverrideBlankIsNil(t *testing.T) {
	if endpointOverride(&appconfig.Config{AWSEndpointOverride: "  "}) != nil {
		t.Fatalf("expected nil override")
	}
}

func TestRedisClientTLS(t *testing.T) {
	c := RedisClient(&appconfig.Config{RedisAddr: "localhost:6380", RedisTLS: true})
	defer c.Close()
	if c.Options().TLSConfig == nil {
		t.Fatalf("expected TLS config")
	}
}
