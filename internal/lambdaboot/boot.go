// Package lambdaboot provides the Lambda cold-start bootstrap: AWS config,
// S3 blob stores, the DynamoDB store, secrets from SSM Parameter Store, and
// startup logging. The Lambda entry point's init is a short composition of
// these helpers.
package lambdaboot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/smm-studio/internal/blob"
	"github.com/fpang/smm-studio/internal/config"
	"github.com/fpang/smm-studio/internal/logging"
	"github.com/fpang/smm-studio/internal/store"
)

// AWSClients holds the core AWS SDK clients used at cold start.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// InitAWS loads the default AWS config and returns it along with common clients.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// BlobStores are the two buckets the service writes to.
type BlobStores struct {
	Posts  *blob.S3Store
	Frames *blob.S3Store
}

// InitBlobStores creates S3-backed stores for the posts and frames buckets.
// A custom endpoint (MinIO) switches the client to path-style addressing.
func InitBlobStores(cfg aws.Config, c *config.Config) BlobStores {
	client := blob.NewS3Client(cfg, c.BlobEndpoint)
	opts := []blob.S3Option{blob.WithURLExpiry(c.BlobURLExpiry)}
	if c.BlobPublicBaseURL != "" {
		opts = append(opts, blob.WithPublicBaseURL(c.BlobPublicBaseURL))
	}
	return BlobStores{
		Posts:  blob.NewS3Store(client, c.PostsBucket, opts...),
		Frames: blob.NewS3Store(client, c.FramesBucket, opts...),
	}
}

// InitDynamo creates the DynamoDB store for table. Fatals if table is empty.
func InitDynamo(cfg aws.Config, table string) *store.DynamoStore {
	if table == "" {
		log.Fatal().Msg("DYNAMO_TABLE_NAME is required in Lambda")
	}
	return store.NewDynamoStore(dynamodb.NewFromConfig(cfg), table)
}

// SSMAPI is the Parameter Store call used to resolve secrets.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

var _ SSMAPI = (*ssm.Client)(nil)

// Secret maps an environment variable to the SSM parameter that supplies it
// when the variable is unset.
type Secret struct {
	EnvVar string
	// ParamEnvVar names the variable that overrides DefaultParam.
	ParamEnvVar  string
	DefaultParam string
	Required     bool
}

// DefaultSecrets are the secrets the Lambda resolves at cold start.
var DefaultSecrets = []Secret{
	{EnvVar: "AUTH_JWT_SECRET", ParamEnvVar: "SSM_JWT_SECRET_PARAM", DefaultParam: "/smm-studio/prod/jwt-secret", Required: true},
	{EnvVar: "FACEBOOK_APP_SECRET", ParamEnvVar: "SSM_FACEBOOK_APP_SECRET_PARAM", DefaultParam: "/smm-studio/prod/facebook-app-secret"},
	{EnvVar: "GEMINI_API_KEY", ParamEnvVar: "SSM_GEMINI_API_KEY_PARAM", DefaultParam: "/smm-studio/prod/gemini-api-key"},
}

// LoadSecrets fills each unset secret's environment variable from SSM.
// Missing optional secrets are logged and left unset, which disables the
// features that need them. It returns the parameter path used per variable.
func LoadSecrets(ctx context.Context, client SSMAPI, secrets []Secret) (map[string]string, error) {
	used := make(map[string]string, len(secrets))
	var errs []error
	for _, s := range secrets {
		if os.Getenv(s.EnvVar) != "" {
			continue
		}
		param := logging.EnvOrDefault(s.ParamEnvVar, s.DefaultParam)
		used[s.EnvVar] = param

		start := time.Now()
		out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           &param,
			WithDecryption: aws.Bool(true),
		})
		if err == nil && (out.Parameter == nil || out.Parameter.Value == nil || *out.Parameter.Value == "") {
			err = errors.New("parameter is empty")
		}
		if err != nil {
			if s.Required {
				errs = append(errs, fmt.Errorf("%s from SSM %s: %w", s.EnvVar, param, err))
				continue
			}
			log.Warn().Err(err).Str("param", param).Str("envVar", s.EnvVar).Msg("Optional secret not found in SSM")
			continue
		}

		os.Setenv(s.EnvVar, *out.Parameter.Value)
		log.Debug().Str("param", param).Dur("elapsed", time.Since(start)).Msg("Secret loaded from SSM")
	}
	return used, errors.Join(errs...)
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
