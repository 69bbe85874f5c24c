package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	eb "lar-simulation/internal/eventBus"
	"lar-simulation/internal/logging"
	"lar-simulation/internal/metrics"
	"lar-simulation/internal/sim"
)

var rootCmd = &cobra.Command{
	Use:          "batch",
	Short:        "Run LAR mesh simulations to completion",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one scenario as fast as possible and write its metrics",
	RunE:  runScenario,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("scenario", "s", "scenario.yaml", "YAML or JSON scenario description")
	runCmd.Flags().String("log-dir", "logs", "directory for log and metrics files")
	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScenario(cmd *cobra.Command, _ []string) error {
	scenarioPath, _ := cmd.Flags().GetString("scenario")
	logDir, _ := cmd.Flags().GetString("log-dir")
	verbose, _ := cmd.Flags().GetBool("verbose")

	sc, err := sim.LoadScenario(scenarioPath)
	if err != nil {
		return err
	}

	logger, logFile, closeLog, err := logging.New(logging.Options{Dir: logDir, Prefix: "batch", Verbose: verbose})
	if err != nil {
		return fmt.Errorf("log setup: %w", err)
	}
	defer closeLog()

	runID := uuid.New()
	if sc.Logging.MetricsFile == "" {
		sc.Logging.MetricsFile = filepath.Join(logDir, "metrics_"+runID.String()+".json")
	}
	// Batch runs never pace against the wall clock.
	sc.RealtimeFactor = 0

	bus := eb.NewEventBus(logger)
	coll := metrics.NewCollector(runID.String())
	coll.Attach(bus)
	runner := sim.NewRunner(sc, bus, coll, logger, sim.WithRunID(runID))

	logger.Info("Starting simulation...", "scenario", scenarioPath, "run_id", runID, "log_file", logFile)

	// catch Ctrl-C / SIGTERM / SIGHUP; the runner stops at the next second of virtual time
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	runErr := runner.Run(ctx)
	if runErr != nil {
		logger.Warn("runner stopped early", "err", runErr)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(struct {
		Summary  sim.Summary      `json:"summary"`
		Counters metrics.Counters `json:"counters"`
	}{runner.Summary(), coll.Snapshot()}); err != nil {
		return err
	}
	logger.Info("run complete", "metrics_file", sc.Logging.MetricsFile)
	return runErr
}
