package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rxaudit/internal/audit"
	"rxaudit/internal/config"
	"rxaudit/internal/llm"
	"rxaudit/internal/logging"
	"rxaudit/internal/server"
	"rxaudit/internal/store"
)

func main() {
	var configPath string
	var outDir string

	rootCmd := &cobra.Command{
		Use:   "rxaudit",
		Short: "Prescription risk audit against the drug knowledge base",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/settings.yaml", "path to config file")

	runCmd := &cobra.Command{
		Use:   "run <cases.json>",
		Short: "Audit a batch of cases from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(configPath, args[0], outDir)
		},
	}
	runCmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (defaults to the input file's directory)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the audit pipeline over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}

	rootCmd.AddCommand(runCmd, serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap builds everything the pipeline needs. Connectivity or template
// failures here are fatal; everything past this point degrades per case.
func bootstrap(configPath string) (*audit.Pipeline, *store.Relational, *store.Graph, *zap.Logger, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("build logger: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	relational, err := store.OpenRelational(cfg.Postgres.URL)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	graph, err := store.OpenGraph(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password)
	if err != nil {
		relational.Close()
		return nil, nil, nil, nil, nil, err
	}

	taskPrompt, err := cfg.LoadPrompt("p1_task_generation.txt")
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	tagPrompt, err := cfg.LoadPrompt("p3_2_tag_selection.txt")
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	reportPrompt, err := cfg.LoadPrompt("p4_final_audit.txt")
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	cache := llm.NewCache(cfg.Redis, logger)
	engine := llm.NewClient(cfg.Engine, cache, logger)

	pipeline := audit.NewPipeline(
		audit.NewCompiler(engine, taskPrompt, logger),
		audit.NewPlanner(logger),
		audit.NewExecutor(relational, graph, cfg.Executor.Parallelism, logger),
		audit.NewCurator(logger),
		audit.NewContextFilter(engine, relational, tagPrompt, logger),
		audit.NewSynthesizer(engine, reportPrompt, logger),
		logger,
	)
	return pipeline, relational, graph, logger, cfg, nil
}

func runBatch(configPath, casesPath, outDir string) error {
	pipeline, relational, graph, logger, _, err := bootstrap(configPath)
	if err != nil {
		return err
	}
	defer relational.Close()
	defer graph.Close(context.Background())
	defer logger.Sync()

	data, err := os.ReadFile(casesPath)
	if err != nil {
		return fmt.Errorf("read cases file: %w", err)
	}
	var cases []audit.Case
	if err := json.Unmarshal(data, &cases); err != nil {
		return fmt.Errorf("parse cases file: %w", err)
	}
	logger.Info("loaded audit cases", zap.Int("count", len(cases)), zap.String("path", casesPath))

	if outDir == "" {
		outDir = filepath.Dir(casesPath)
	}
	stem := strings.TrimSuffix(filepath.Base(casesPath), filepath.Ext(casesPath))

	_, err = pipeline.RunBatch(context.Background(), cases, outDir, stem)
	return err
}

func serve(configPath string) error {
	pipeline, relational, graph, logger, cfg, err := bootstrap(configPath)
	if err != nil {
		return err
	}
	defer relational.Close()
	defer graph.Close(context.Background())
	defer logger.Sync()

	srv := server.New(cfg.Server.Addr, pipeline, relational, graph, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("shutting down gracefully")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
