// Package main runs the studio API as a standalone HTTP server.
//
// Accounts, drafts, and frames are kept in a local SQLite file. Images go to
// an S3-compatible bucket; point BLOB_ENDPOINT at MinIO for local development.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/smm-studio/internal/app"
	"github.com/fpang/smm-studio/internal/blob"
	"github.com/fpang/smm-studio/internal/config"
	"github.com/fpang/smm-studio/internal/logging"
	"github.com/fpang/smm-studio/internal/store"
)

// CLI flags
var (
	portFlag int
	dbFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "studio-web",
	Short: "Social media studio API server",
	Long: `Studio Web serves the studio API: caption and image generation,
Instagram account linking and publishing, drafts, and frames.

Configuration comes from the environment (and a .env file when present).
Flags override the matching variables.

Examples:
  studio-web
  studio-web --port 9090
  studio-web --db /var/lib/studio/studio.db`,
	RunE: runMain,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (default $PORT or 8080)")
	rootCmd.Flags().StringVar(&dbFlag, "db", "", "SQLite database path (default $DATABASE_PATH or studio.db)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) error {
	initStart := time.Now()
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if portFlag != 0 {
		cfg.Port = portFlag
	}
	if dbFlag != "" {
		cfg.DatabasePath = dbFlag
	}

	ctx := context.Background()

	st, err := store.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}
	s3Client := blob.NewS3Client(awsCfg, cfg.BlobEndpoint)
	blobOpts := []blob.S3Option{blob.WithURLExpiry(cfg.BlobURLExpiry)}
	if cfg.BlobPublicBaseURL != "" {
		blobOpts = append(blobOpts, blob.WithPublicBaseURL(cfg.BlobPublicBaseURL))
	}

	srv, features, err := app.Build(ctx, cfg, app.Backends{
		Store:  st,
		Posts:  blob.NewS3Store(s3Client, cfg.PostsBucket, blobOpts...),
		Frames: blob.NewS3Store(s3Client, cfg.FramesBucket, blobOpts...),
	})
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpSrv.Shutdown(ctx)
	}()

	logging.NewStartupLogger("studio-web").
		CommitHash(commitHash).
		BuildTime(buildTime).
		InitDuration(time.Since(initStart)).
		Database("store", cfg.DatabasePath).
		Bucket("posts", cfg.PostsBucket).
		Bucket("frames", cfg.FramesBucket).
		Feature("captions", features.Captions).
		Feature("imagen", features.Imagen).
		Feature("accountLinking", features.AccountLinking).
		Config("port", fmt.Sprint(cfg.Port)).
		Config("blobEndpoint", cfg.BlobEndpoint).
		Config("corsOrigins", strings.Join(cfg.CORSOrigins, ",")).
		Config("captionModels", strings.Join(cfg.CaptionModels, ",")).
		Log()

	fmt.Printf("\n  Studio API: http://localhost:%d/api/health\n\n", cfg.Port)

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
