// Package main is the Lambda entry point for the studio API.
//
// API Gateway (HTTP API, payload v2) invokes the same chi router the local
// server runs. Accounts, drafts, and frames live in DynamoDB, images in S3,
// and secrets are resolved from SSM Parameter Store at cold start.
//
// When ORIGIN_VERIFY_SECRET is set, requests must carry the matching
// x-origin-verify header that CloudFront injects, which blocks direct API
// Gateway access.
package main

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/smm-studio/internal/app"
	"github.com/fpang/smm-studio/internal/config"
	"github.com/fpang/smm-studio/internal/lambdaboot"
	"github.com/fpang/smm-studio/internal/logging"
)

var (
	handler            http.Handler
	originVerifySecret string
)

func init() {
	initStart := time.Now()
	logging.Init()
	ctx := context.Background()

	clients := lambdaboot.InitAWS()
	params, err := lambdaboot.LoadSecrets(ctx, clients.SSM, lambdaboot.DefaultSecrets)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load secrets")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	blobs := lambdaboot.InitBlobStores(clients.Config, cfg)
	st := lambdaboot.InitDynamo(clients.Config, cfg.DynamoTable)

	srv, features, err := app.Build(ctx, cfg, app.Backends{Store: st, Posts: blobs.Posts, Frames: blobs.Frames})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build API server")
	}

	originVerifySecret = os.Getenv("ORIGIN_VERIFY_SECRET")
	if originVerifySecret == "" {
		log.Warn().Msg("ORIGIN_VERIFY_SECRET not set, origin verification disabled")
	}
	handler = withOriginVerify(srv.Handler())

	sl := lambdaboot.StartupLog("studio-lambda", initStart).
		CommitHash(commitHash).
		BuildTime(buildTime).
		Bucket("posts", cfg.PostsBucket).
		Bucket("frames", cfg.FramesBucket).
		DynamoTable("store", cfg.DynamoTable).
		Feature("captions", features.Captions).
		Feature("imagen", features.Imagen).
		Feature("accountLinking", features.AccountLinking).
		Feature("originVerify", originVerifySecret != "").
		Config("graphBaseUrl", cfg.GraphBaseURL).
		Config("captionModels", strings.Join(cfg.CaptionModels, ",")).
		Config("captionLanguage", cfg.CaptionLanguage).
		Config("publishPoll", cfg.PublishPollInterval.String())
	for envVar, path := range params {
		sl = sl.SSMParam(envVar, path)
	}
	sl.Log()
}

func main() {
	adapter := httpadapter.NewV2(handler)
	lambda.Start(adapter.ProxyWithContext)
}

// withOriginVerify rejects requests lacking the correct x-origin-verify
// header. Health checks are exempt so the load balancer can probe directly.
func withOriginVerify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if originVerifySecret == "" || r.URL.Path == "/api/health" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("x-origin-verify") != originVerifySecret {
			log.Warn().Str("path", r.URL.Path).Msg("Blocked request: missing or invalid x-origin-verify header")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":"forbidden"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
