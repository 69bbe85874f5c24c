package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	eb "lar-simulation/internal/eventBus"
	"lar-simulation/internal/logging"
	"lar-simulation/internal/metrics"
	"lar-simulation/internal/mqtt"
	"lar-simulation/internal/server"
	"lar-simulation/internal/sim"
	"lar-simulation/internal/utils"
)

var rootCmd = &cobra.Command{
	Use:          "simulator",
	Short:        "Live LAR mesh simulation with a websocket, REST and MQTT front end",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a scenario paced against the wall clock and serve it",
	RunE:  serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("scenario", "s", "", "YAML or JSON scenario description (default: built-in scenario)")
	serveCmd.Flags().String("addr", ":8080", "HTTP listen address")
	serveCmd.Flags().String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883 (overrides the scenario)")
	serveCmd.Flags().String("log-dir", "logs", "directory for log files")
	serveCmd.Flags().Duration("monitor", 0, "log goroutine and heap usage at this interval")
	serveCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	scenarioPath, _ := flags.GetString("scenario")
	addr, _ := flags.GetString("addr")
	broker, _ := flags.GetString("mqtt-broker")
	logDir, _ := flags.GetString("log-dir")
	monitor, _ := flags.GetDuration("monitor")
	verbose, _ := flags.GetBool("verbose")

	sc := sim.DefaultScenario()
	if scenarioPath != "" {
		var err error
		if sc, err = sim.LoadScenario(scenarioPath); err != nil {
			return err
		}
	}
	if sc.RealtimeFactor == 0 {
		sc.RealtimeFactor = 1
	}
	if broker != "" {
		sc.MQTT.Broker = broker
	}

	logger, logFile, closeLog, err := logging.New(logging.Options{Dir: logDir, Prefix: "sim", Verbose: verbose})
	if err != nil {
		return fmt.Errorf("log setup: %w", err)
	}
	defer closeLog()

	runID := uuid.New()
	bus := eb.NewEventBus(logger)
	coll := metrics.NewCollector(runID.String())
	coll.Attach(bus)
	runner := sim.NewRunner(sc, bus, coll, logger, sim.WithRunID(runID))
	srv := server.New(bus, runner, coll, logger)

	logger.Info("Starting simulation...", "run_id", runID, "addr", addr, "realtime_factor", sc.RealtimeFactor, "log_file", logFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := runner.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		// The server stays up after the run so /stats and /metrics remain readable.
		return err
	})
	g.Go(func() error { return srv.ListenAndServe(gctx, addr) })

	if sc.MQTT.Broker != "" {
		clientID := sc.MQTT.ClientID
		if clientID == "" {
			clientID = "lar-sim-" + runID.String()[:8]
		}
		bridge := mqtt.New(mqtt.Config{
			Broker:      sc.MQTT.Broker,
			ClientID:    clientID,
			TopicPrefix: sc.MQTT.TopicPrefix,
		}, logger)
		g.Go(func() error { return bridge.Run(gctx, runID.String(), bus, runner) })
	}
	if monitor > 0 {
		g.Go(func() error {
			utils.MonitorResources(gctx, monitor, logger)
			return nil
		})
	}

	err = g.Wait()
	logger.Info("simulator stopped", "err", err)
	return err
}
