package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rxtech-lab/edgefinder/internal/api"
	"github.com/rxtech-lab/edgefinder/internal/config"
	"github.com/rxtech-lab/edgefinder/internal/engine"
	"github.com/rxtech-lab/edgefinder/internal/logger"
	"github.com/rxtech-lab/edgefinder/internal/rule"
	"github.com/rxtech-lab/edgefinder/internal/signalscan"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

func main() {
	// Optional; API keys may come from the environment directly.
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "edgefinder",
		Usage: "Find and track per-instrument trading rule stacks with a historical edge",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file",
				Value:   "edgefinder.yaml",
			},
			&cli.StringFlag{
				Name:  "freeze-date",
				Usage: "Override the config freeze date (`YYYY-MM-DD`) for deterministic replay",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Optimize every instrument, persist the winners, then run the daily signal scan",
				Action: runAction,
			},
			{
				Name:   "optimize",
				Usage:  "Optimize every instrument and persist the winning rule stacks",
				Action: optimizeAction,
			},
			{
				Name:   "signals",
				Usage:  "Run the daily signal scan against the persisted strategies",
				Action: signalsAction,
			},
			{
				Name:   "download",
				Usage:  "Fetch and cache price history for every configured instrument",
				Action: downloadAction,
			},
			{
				Name:   "serve",
				Usage:  "Serve the read-only strategy and position query API",
				Action: serveAction,
			},
			{
				Name:   "generate-schema",
				Usage:  "Print the JSON schema of the config format",
				Action: generateSchemaAction,
			},
			{
				Name:   "init",
				Usage:  "Print a sample config file",
				Action: initAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

// setup loads the config and builds the pipeline shared by most commands.
func setup(ctx context.Context, cmd *cli.Command) (*engine.Engine, config.Config, *logger.Logger, error) {
	var (
		lg  *logger.Logger
		err error
	)

	if cmd.Bool("verbose") {
		lg, err = logger.NewLoggerWithLevel(zap.DebugLevel)
	} else {
		lg, err = logger.NewLogger()
	}

	if err != nil {
		return nil, config.Config{}, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	registry := rule.NewDefaultRegistry()

	cfg, err := config.LoadConfig(cmd.String("config"), registry)
	if err != nil {
		return nil, config.Config{}, nil, err
	}

	if freeze := cmd.String("freeze-date"); freeze != "" {
		cfg.Data.FreezeDate = freeze
		if _, err := cfg.FreezeDate(); err != nil {
			return nil, config.Config{}, nil, err
		}
	}

	eng, err := engine.NewEngine(ctx, cfg, registry, lg)
	if err != nil {
		return nil, config.Config{}, nil, err
	}

	return eng, cfg, lg, nil
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	eng, _, lg, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer eng.Close()
	defer lg.Sync()

	summary, err := eng.Run(ctx, true)
	if err != nil {
		return err
	}

	printOptimizeSummary(summary)

	if summary.Scan != nil {
		printScanSummary(*summary.Scan)
	}

	return nil
}

func optimizeAction(ctx context.Context, cmd *cli.Command) error {
	eng, _, lg, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer eng.Close()
	defer lg.Sync()

	summary, err := eng.Optimize(ctx, true)
	if err != nil {
		return err
	}

	printOptimizeSummary(summary)

	return nil
}

func signalsAction(ctx context.Context, cmd *cli.Command) error {
	eng, _, lg, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer eng.Close()
	defer lg.Sync()

	scan, err := eng.Scan(ctx)
	if err != nil {
		return err
	}

	printScanSummary(scan)

	return nil
}

func downloadAction(ctx context.Context, cmd *cli.Command) error {
	eng, cfg, lg, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer eng.Close()
	defer lg.Sync()

	fetched, skipped := eng.Download(ctx)

	fmt.Printf("Fetched %d of %d instruments\n", fetched, len(cfg.Data.Instruments))

	for instrument, fetchErr := range skipped {
		fmt.Printf("  skipped %s: %v\n", instrument, fetchErr)
	}

	if len(skipped) > 0 {
		return errors.Newf(errors.ErrCodeDataNotFound, "%d instruments could not be fetched", len(skipped))
	}

	return nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	eng, cfg, lg, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer eng.Close()
	defer lg.Sync()

	listen := cfg.API.Listen
	if listen == "" {
		listen = ":8080"
	}

	server, err := api.NewServer(listen, eng.Store(), lg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		return server.Shutdown(context.Background())
	}
}

func generateSchemaAction(_ context.Context, _ *cli.Command) error {
	sample := config.SampleConfig()

	schema, err := sample.GenerateSchemaJSON()
	if err != nil {
		return err
	}

	fmt.Println(schema)

	return nil
}

func initAction(_ context.Context, _ *cli.Command) error {
	sample := config.SampleConfig()

	data, err := yaml.Marshal(sample)
	if err != nil {
		return err
	}

	fmt.Println(string(data))

	return nil
}

func printOptimizeSummary(summary engine.RunSummary) {
	fmt.Printf("Run %s: %d strategies persisted across %d instruments\n",
		summary.RunTimestamp.Format("2006-01-02 15:04:05"), summary.Persisted, len(summary.Reports))

	for _, rep := range summary.Reports {
		if rep.Err != nil {
			fmt.Printf("  %s: skipped (%v)\n", rep.Instrument, rep.Err)

			continue
		}

		active, ok := rep.Active()
		if !ok {
			fmt.Printf("  %s: no stack survived (%d evaluated, %d skipped)\n",
				rep.Instrument, rep.Evaluated, len(rep.Skipped))

			continue
		}

		fmt.Printf("  %s: %s (edge %.4f, win %.1f%%, sharpe %.2f, %d trades)\n",
			rep.Instrument, active.Stack.Label(), active.EdgeScore,
			active.Stats.WinPct*100, active.Stats.Sharpe, active.Stats.TotalTrades)
	}

	if summary.ReportPath != "" {
		fmt.Printf("Report written to %s\n", summary.ReportPath)
	}
}

func printScanSummary(scan signalscan.ScanResult) {
	fmt.Printf("Scan %s: %d open before, %d opened, %d closed\n",
		scan.AsOf.Format("2006-01-02"), len(scan.OpenBefore), scan.Opened, scan.Closed)

	for _, event := range scan.Events {
		fmt.Printf("  %s %s %s @ %.4f (%s)\n",
			event.Date.Format("2006-01-02"), event.Type, event.Instrument, event.Price, event.Reason)
	}

	for _, skip := range scan.Skipped {
		fmt.Printf("  skipped %s: %s\n", skip.Instrument, skip.Reason)
	}
}
