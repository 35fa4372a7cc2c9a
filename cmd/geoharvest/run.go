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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/nordkart/geoharvest/internal/config"
	"github.com/nordkart/geoharvest/pkg/backpressure"
	"github.com/nordkart/geoharvest/pkg/cache"
	"github.com/nordkart/geoharvest/pkg/client"
	"github.com/nordkart/geoharvest/pkg/ingest"
	"github.com/nordkart/geoharvest/pkg/logging"
	"github.com/nordkart/geoharvest/pkg/pagination"
	"github.com/nordkart/geoharvest/pkg/sink"
	"github.com/nordkart/geoharvest/pkg/source"
)

var metricsAddr string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest all configured sources",
	RunE:  runIngestion,
}

func init() {
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.AddCommand(runCmd)
}

func runIngestion(cmd *cobra.Command, args []string) error {
	logger := logging.NewLogger("geoharvest")

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("log-level") && cfg.LogLevel != "" {
		logging.Setup(logging.Config{Level: logging.LogLevel(cfg.LogLevel), Pretty: logPretty})
	}

	descs, err := cfg.Descriptors()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info().Str("addr", metricsAddr).Msg("Serving metrics")
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	clientCfg := cfg.ClientConfig()
	clientCfg.Backpressure = backpressure.NewTracker(logging.NewLogger("backpressure"))
	httpClient, err := client.New(clientCfg)
	if err != nil {
		return fmt.Errorf("create http client: %w", err)
	}

	var probeCache *cache.Manager
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).
				Msg("Redis unavailable, running without probe cache")
		} else {
			ttl := time.Duration(cfg.Redis.TTLMinutes) * time.Minute
			probeCache = cache.NewManager(redisClient, ttl)
			logger.Info().Str("addr", cfg.Redis.Addr).Msg("Probe cache enabled")
		}
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	newSink := func(desc source.Descriptor) (sink.Sink, error) {
		name := source.SanitizeLayerName(desc.Name)
		switch cfg.Output.Format {
		case "parquet":
			return sink.NewParquetSink(filepath.Join(cfg.Output.Dir, name+".parquet"))
		default:
			return sink.NewGeoJSONSink(filepath.Join(cfg.Output.Dir, name+".geojson")), nil
		}
	}

	descs, err = source.ExpandServices(ctx, httpClient, descs)
	if err != nil {
		return err
	}

	coordinator := ingest.NewCoordinator(pagination.NewEngine(httpClient, probeCache))
	results, runErr := coordinator.Run(ctx, descs, newSink)

	failed := 0
	for _, res := range results {
		if res.BatchesTotal == 0 && res.RecordsAccepted == 0 && len(res.ErrorTally) > 0 {
			failed++
		}
		fmt.Fprintf(cmd.OutOrStdout(),
			"%s: strategy=%s batches=%d/%d accepted=%d rejected=%d dominant=%s elapsed=%s\n",
			res.Source, res.Strategy, res.BatchesSucceeded, res.BatchesTotal,
			res.RecordsAccepted, res.RecordsRejected, res.DominantGeometry,
			res.Elapsed.Round(time.Millisecond))
		for class, n := range res.ErrorTally {
			fmt.Fprintf(cmd.OutOrStdout(), "  errors %s: %d\n", class, n)
		}
		for _, w := range res.FailedWindows {
			fmt.Fprintf(cmd.OutOrStdout(), "  gap: ids %d-%d offset %d\n", w.IDLow, w.IDHigh, w.Offset)
		}
	}

	if runErr != nil {
		return runErr
	}
	if failed == len(results) && failed > 0 {
		return fmt.Errorf("all %d sources failed", failed)
	}
	return nil
}
