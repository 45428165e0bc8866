package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"research-agent/internal/agent"
	"research-agent/internal/common/config"
	"research-agent/internal/common/database"
	"research-agent/internal/common/logger"
	"research-agent/internal/common/observability"
	"research-agent/internal/dataset"
	"research-agent/internal/history"
	"research-agent/internal/llm"
	"research-agent/internal/report"
)

const version = "1.0.0"

var (
	configFile string
	approach   string
	format     string
	runsLimit  int
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "o", report.FormatText, "output format (text|json)")

	analyzeCmd.Flags().StringVarP(&approach, "approach", "a", agent.ApproachDeepResearch,
		fmt.Sprintf("analysis approach %v", agent.Approaches))
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 10, "number of runs to list")

	rootCmd.AddCommand(analyzeCmd, schemaCmd, runsCmd, versionCmd)
}

var rootCmd = &cobra.Command{
	Use:   "research-agent",
	Short: "Compares baseline, pipeline and deep research analysis of the Superstore dataset",
	Long: `research-agent runs business questions against the Superstore retail
dataset using one of three approaches: a single direct model call
(baseline), a fixed plan-execute-synthesize sequence (pipeline), or an
adaptive loop that reflects on completeness and revises its plan
(deep-research).`,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [question]",
	Short: "Run a business question through the selected approach",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		cfg, zapLog, log, err := setup()
		if err != nil {
			return err
		}
		defer zapLog.Sync()

		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is not set")
		}

		obs := observability.New(cfg.App.Name)
		defer obs.Shutdown()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.Metrics.Enabled {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				zapLog.Info("metrics server listening", zap.String("address", cfg.Metrics.Address))
				if err := http.ListenAndServe(cfg.Metrics.Address, mux); err != nil {
					zapLog.Warn("metrics server stopped", zap.Error(err))
				}
			}()
		}

		store, err := dataset.Open(ctx, cfg.Dataset, log)
		if err != nil {
			return err
		}
		defer store.Close()

		schema, err := store.Schema(ctx)
		if err != nil {
			return err
		}

		var completer llm.Completer = llm.NewClient(&cfg.LLM, log)

		if cfg.Cache.Enabled {
			var redis *database.RedisClient
			err = retryWithBackoff(func() error {
				var err error
				redis, err = database.NewRedis(cfg.Cache.Redis)
				if err != nil {
					return err
				}
				return redis.Ping(ctx)
			}, 5, 2*time.Second, zapLog, "Redis connection")
			if err != nil {
				return err
			}
			defer redis.Close()

			completer = llm.NewCachedCompleter(
				completer, redis, config.GetDuration(cfg.Cache.TTL),
				cfg.LLM.Model, cfg.LLM.Temperature, log,
			)
		}

		var runStore *history.Store
		if cfg.History.Enabled {
			var pg *database.PostgresClient
			err = retryWithBackoff(func() error {
				var err error
				pg, err = database.NewPostgres(cfg.History.Postgres)
				if err != nil {
					return err
				}
				return pg.Ping(ctx)
			}, 5, 2*time.Second, zapLog, "PostgreSQL connection")
			if err != nil {
				return err
			}
			defer pg.Close()

			runStore = history.NewStore(pg.DB, log)
			if err := runStore.EnsureSchema(ctx); err != nil {
				return err
			}
		}

		start := time.Now()
		obsStatus := "success"

		a := agent.New(&cfg.Agent, completer, store, schema.Describe(), log)
		result, err := a.Analyze(ctx, query, approach)
		if err != nil {
			obsStatus = "error"
			obs.RecordRun(ctx, approach, obsStatus)
			return err
		}
		obs.RecordRun(ctx, approach, obsStatus)
		obs.RecordRunDuration(ctx, time.Since(start), approach)

		if runStore != nil {
			if err := runStore.Save(ctx, result); err != nil {
				// The analysis already succeeded, don't throw it away
				log.Warn("failed to persist run", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}

		return report.WriteResult(cmd.OutOrStdout(), result, format)
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Show the inferred layout of the loaded dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, zapLog, log, err := setup()
		if err != nil {
			return err
		}
		defer zapLog.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := dataset.Open(ctx, cfg.Dataset, log)
		if err != nil {
			return err
		}
		defer store.Close()

		schema, err := store.Schema(ctx)
		if err != nil {
			return err
		}

		return report.WriteSchema(cmd.OutOrStdout(), schema, format)
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored analysis runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, zapLog, log, err := setup()
		if err != nil {
			return err
		}
		defer zapLog.Sync()

		if !cfg.History.Enabled {
			return fmt.Errorf("history is disabled in configuration")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		pg, err := database.NewPostgres(cfg.History.Postgres)
		if err != nil {
			return err
		}
		defer pg.Close()

		records, err := history.NewStore(pg.DB, log).ListRecent(ctx, runsLimit)
		if err != nil {
			return err
		}

		return report.WriteRecords(cmd.OutOrStdout(), records, format)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "research-agent %s\n", version)
	},
}

func setup() (*config.Config, *zap.Logger, logger.Logger, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, nil, err
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, zapLog, logger.NewZapAdapter(zapLog), nil
}

func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
