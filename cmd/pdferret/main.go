package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pdferret/pdferret/internal/api"
	"github.com/pdferret/pdferret/pkg/chunker"
	"github.com/pdferret/pdferret/pkg/config"
	"github.com/pdferret/pdferret/pkg/extract"
	"github.com/pdferret/pdferret/pkg/ferret"
	"github.com/pdferret/pdferret/pkg/llm"
	"github.com/pdferret/pdferret/pkg/metrics"
	"github.com/pdferret/pdferret/pkg/pipeline"
	"github.com/pdferret/pdferret/pkg/utils"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pdferret",
		Short: "PDFerret document extraction service",
		Long:  "Batch document extraction: metadata, chunks and thumbnails for office-style documents",
		Run:   runServer,
	}

	rootCmd.Flags().String("config", "", "config file path")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().String("bind-addr", ":8012", "HTTP server bind address")
	rootCmd.Flags().String("metrics-addr", ":9090", "Metrics server bind address")

	_ = viper.BindPFlags(rootCmd.Flags())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if addr := viper.GetString("bind-addr"); addr != "" {
		cfg.Server.BindAddr = addr
	}
	if addr := viper.GetString("metrics-addr"); addr != "" {
		cfg.Metrics.BindAddr = addr
	}

	logger := initLogger(cfg, viper.GetString("log-level"))
	logger.WithFields(logrus.Fields{
		"version": Version,
		"commit":  Commit,
		"built":   BuildTime,
	}).Info("Starting PDFerret")

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	factory := dispatcherFactory(cfg, m, logger)
	handler := api.NewHandler(cfg, factory, logger)

	router := mux.NewRouter()
	router.Use(utils.RecoveryMiddleware(logger))
	router.Use(utils.LoggingMiddleware(logger))
	handler.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:         cfg.Server.BindAddr,
		Handler:      otelhttp.NewHandler(router, "pdferret-api"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.Metrics.BindAddr, Handler: metricsMux}
		go func() {
			logger.WithField("addr", cfg.Metrics.BindAddr).Info("Metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	go func() {
		logger.WithField("addr", cfg.Server.BindAddr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(ctx)
	}
}

// dispatcherFactory binds the configuration and backends once; model names
// arrive per request.
func dispatcherFactory(cfg *config.Config, m *metrics.Metrics, logger *logrus.Logger) api.DispatcherFactory {
	inspector := extract.PopplerInspector{}
	rasterizer := extract.PopplerRasterizer{}
	markdown := extract.PandocConverter{}
	ocr := extract.NewHTTPOCRBackend(cfg.OCR.URL, cfg.OCR.Timeout)
	speller := chunker.NewSpeller()

	return func(textModel, visionModel string) (*ferret.PDFerret, error) {
		if textModel == "" {
			textModel = "llama-3.2-3b-preview"
		}
		if visionModel == "" {
			visionModel = "pixtral-12b"
		}
		text, err := llm.NewClient(llm.ClientConfig{
			BaseURL:        cfg.LLM.BaseURL,
			APIKey:         cfg.LLM.APIKey,
			Model:          textModel,
			Timeout:        cfg.LLM.Timeout,
			MaxInputTokens: cfg.LLM.MaxInputTokens,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build text model handle: %w", err)
		}
		vision, err := llm.NewClient(llm.ClientConfig{
			BaseURL:        cfg.LLM.BaseURL,
			APIKey:         cfg.LLM.APIKey,
			Model:          visionModel,
			Timeout:        cfg.LLM.Timeout,
			MaxInputTokens: cfg.LLM.MaxInputTokens,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build vision model handle: %w", err)
		}

		registry := pipeline.BuildRegistry(pipeline.Deps{
			Config:      cfg,
			TextModel:   text,
			VisionModel: vision,
			Inspector:   inspector,
			OCR:         ocr,
			Rasterizer:  rasterizer,
			Markdown:    markdown,
			Speller:     speller,
			Logger:      logger,
		})
		return ferret.New(cfg, registry, m, logger), nil
	}
}

func initLogger(cfg *config.Config, override string) *logrus.Logger {
	logger := logrus.New()
	level := cfg.Logging.Level
	if override != "" {
		level = override
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}
