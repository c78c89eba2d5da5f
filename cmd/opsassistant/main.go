// opsassistant is the AWS operations assistant service. It accepts chat
// questions over WebSocket, brokers cross-account credentials, and answers
// with inventory reports, screener scans, or Q CLI responses served from a
// shared artifact tree.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/saltware-cloud/opsassistant/internal/artifact"
	awsx "github.com/saltware-cloud/opsassistant/internal/aws"
	"github.com/saltware-cloud/opsassistant/internal/config"
	"github.com/saltware-cloud/opsassistant/internal/gateway"
	"github.com/saltware-cloud/opsassistant/internal/identity"
	"github.com/saltware-cloud/opsassistant/internal/inventory"
	"github.com/saltware-cloud/opsassistant/internal/logging"
	"github.com/saltware-cloud/opsassistant/internal/qcli"
	"github.com/saltware-cloud/opsassistant/internal/report"
	"github.com/saltware-cloud/opsassistant/internal/screener"
	"github.com/saltware-cloud/opsassistant/internal/session"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "opsassistant",
		Short:   "AWS 운영 어시스턴트 — cross-account inventory, reports, and scans over chat",
		Version: version,
	}

	rootCmd.AddCommand(newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the assistant service",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.ListenAddr = addr
			}
			return serve(cfg)
		},
	}

	cmd.Flags().String("config", "", "Path to config file (optional)")
	cmd.Flags().String("addr", "", "Listen address override")

	return cmd
}

func serve(cfg config.Config) error {
	logger := logging.NewLogger(cfg.LogLevel)
	if cfg.LogJSON {
		logger = logging.NewJSONLogger(os.Stderr, cfg.LogLevel)
	}
	logger.Info().Str("version", version).Str("addr", cfg.ListenAddr).Msg("starting opsassistant")

	factory := awsx.NewClientFactory(logger)

	secrets, err := buildSecretSource(cfg)
	if err != nil {
		return err
	}
	broker := identity.NewBroker(identity.Options{
		Secrets:           secrets,
		STS:               identity.NewSTSFactory(factory, cfg.PrimaryRegion),
		TenantRoleName:    cfg.TenantRoleName,
		BridgeRoleARN:     cfg.BridgeRoleARN,
		BridgeExternalID:  cfg.BridgeExternalID,
		SessionNamePrefix: cfg.SessionNamePrefix,
		Region:            cfg.PrimaryRegion,
		TTL:               cfg.CredentialTTL(),
	}, logger)

	collector := inventory.NewCollector(factory, cfg.TrustedAdvisorRegion, logger)
	renderer := report.NewRenderer()

	store, err := artifact.NewStore(artifact.Options{
		Root:              cfg.ArtifactRoot,
		URLPrefix:         cfg.URLPrefix,
		RetentionReport:   time.Duration(cfg.RetentionReportDays) * 24 * time.Hour,
		RetentionScreener: time.Duration(cfg.RetentionScreenerDays) * 24 * time.Hour,
	}, logger)
	if err != nil {
		return fmt.Errorf("opening artifact store: %w", err)
	}
	if err := store.EnsureAssets(cfg.ScreenerOutputRoot); err != nil {
		logger.Warn().Err(err).Msg("shared asset tree not installed")
	}

	scr := screener.NewAdapter(screener.Options{
		Dir:        cfg.ScreenerDir,
		OutputRoot: cfg.ScreenerOutputRoot,
		Timeout:    cfg.ScreenerTimeout(),
		Retention:  time.Duration(cfg.RetentionScreenerDays) * 24 * time.Hour,
	}, logger)
	summarizer := screener.NewSummarizer(screener.SummarizerOptions{
		Dir:      cfg.WASummarizerDir,
		AssetDir: filepath.Join(cfg.ScreenerOutputRoot, "res"),
		Timeout:  cfg.WASummarizerTimeout(),
	}, logger)
	assistant := qcli.NewRunner(cfg.QCLIBinary, cfg.QCLITimeout(), logger)

	orch := session.NewOrchestrator(broker, collector, renderer, store, scr, summarizer, assistant, logger)
	hub := gateway.NewHub(orch, logger)

	router := mux.NewRouter()
	router.HandleFunc("/ws", hub.ServeWS)
	artifact.NewServer(store, hub.Count, logger).Register(router)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming websocket writes manage their own deadlines
	}

	done := make(chan struct{})
	go store.RunSweeper(done, cfg.SweepInterval())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		close(done)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		orch.Wait()
	}()

	logger.Info().Msg("service ready")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func buildSecretSource(cfg config.Config) (identity.SecretSource, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	awsCfg, err := awsx.AmbientConfig(ctx, cfg.PrimaryRegion)
	if err != nil {
		return nil, fmt.Errorf("loading ambient AWS config: %w", err)
	}

	switch cfg.SecretBackend {
	case "secretsmanager":
		return identity.NewSecretsManagerSource(secretsmanager.NewFromConfig(awsCfg), cfg.AccessKeySecretName, cfg.SecretKeySecretName), nil
	default:
		return identity.NewSSMSecretSource(ssm.NewFromConfig(awsCfg), cfg.AccessKeySecretName, cfg.SecretKeySecretName), nil
	}
}
