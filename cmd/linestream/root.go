package main

import (
	"context"
	"net/http"
	"os"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Zereker/linestream"
)

var (
	// Global flags
	cfgFile     string
	logLevel    string
	metricsAddr string

	// Shared state set during PersistentPreRun
	cfg     *Config
	logger  zerologLogger
	metrics *linestream.Metrics
)

// rootCmd is the base command for linestream.
var rootCmd = &cobra.Command{
	Use:   "linestream",
	Short: "Serve and benchmark newline-delimited message streams",
	Long: `linestream frames newline-delimited JSON messages out of TCP streams.
The serve command counts messages with a selectable reader shape; the send
command produces a stream to count.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = Load(cfgFile)
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}

		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("metrics-addr") {
			cfg.MetricsAddr = metricsAddr
		}

		logger, err = newLogger(os.Stderr, cfg.LogLevel, cfg.LogNoColor)
		if err != nil {
			return errors.Wrap(err, "invalid log level")
		}

		if cfg.MetricsAddr != "" {
			metrics, err = linestream.NewMetrics(prometheus.DefaultRegisterer, "linestream")
			if err != nil {
				return errors.Wrap(err, "failed to register metrics")
			}
			serveMetrics(cmd.Context(), cfg.MetricsAddr)
		}
		return nil
	},
}

// serveMetrics exposes the default prometheus registry at /metrics until
// ctx is done.
func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error, disabled")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	rootCmd.AddCommand(serveCmd, sendCmd)
}
