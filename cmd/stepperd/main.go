// stepperd runs the closed-loop stepper motion controller against the
// simulated driver backend and exposes it over HTTP/WebSocket.
//
// Usage:
//
//	stepperd [options]
//
// Options:
//
//	-config string   Settings file (INI style, optional)
//	-listen string   Monitor HTTP/WebSocket address (default ":8080")
//	-metrics string  Prometheus metrics address (default ":9100")
//	-logfile string  Log file path with rotation (default: stderr)
//	-debug           Enable debug logging
//	-rt              Request SCHED_FIFO for the motion task (needs CAP_SYS_NICE)
//	-travel int      Simulated track length in steps (default 1000)
//
// Examples:
//
//	# Defaults: simulated 1000-step track, monitor on :8080
//	stepperd
//
//	# Real settings file plus real-time scheduling
//	sudo stepperd -config /etc/stepperd.conf -rt
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skullstepper-go/pkg/backend"
	"skullstepper-go/pkg/config"
	"skullstepper-go/pkg/controller"
	"skullstepper-go/pkg/log"
	"skullstepper-go/pkg/metrics"
	"skullstepper-go/pkg/monitor"
	"skullstepper-go/pkg/rt"
	"skullstepper-go/pkg/safety"
)

func main() {
	configFile := flag.String("config", "", "Settings file (INI style)")
	listenAddr := flag.String("listen", ":8080", "Monitor HTTP/WebSocket address")
	metricsAddr := flag.String("metrics", ":9100", "Prometheus metrics address")
	logFile := flag.String("logfile", "", "Log file path (default: stderr)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	useRT := flag.Bool("rt", false, "Request SCHED_FIFO for the motion task")
	travel := flag.Int64("travel", 1000, "Simulated track length in steps")
	flag.Parse()

	logger := log.GetLogger("stepperd")
	if *debug {
		logger.SetLevel(log.DEBUG)
	}
	if *logFile != "" {
		w, err := log.NewRotatingFileWriter(log.RotationConfig{Filename: *logFile})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer w.Close()
		logger.SetWriter(w)
		logger.SetColorize(false)
	}

	settings := config.Defaults()
	if *configFile != "" {
		var err error
		settings, err = config.Load(*configFile)
		if err != nil {
			logger.Error("config: %v", err)
			os.Exit(1)
		}
	}
	cfg, err := config.NewStore(settings)
	if err != nil {
		logger.Error("config: %v", err)
		os.Exit(1)
	}

	// Simulated axis: switches sit just outside [0, travel] so the
	// start position is clear of both.
	sim := backend.NewSim(backend.SimConfig{
		LeftLimit:    -10,
		RightLimit:   *travel + 10,
		Speed:        settings.Profile.MaxSpeed,
		Acceleration: settings.Profile.Acceleration,
	})

	left := safety.NewLimitSwitch(safety.Left, sim.LeftLevel)
	right := safety.NewLimitSwitch(safety.Right, sim.RightLevel)
	sim.OnLeftEdge(left.Input().Trigger)
	sim.OnRightEdge(right.Input().Trigger)
	mon := safety.NewMonitor(left, right, logger.WithPrefix("safety"))

	sm := metrics.NewStepperMetrics()
	ctrl := controller.New(cfg, sim, sim.AlarmLevel, mon, sm, logger.WithPrefix("motion"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim.Start(ctx, 0)

	metricsServer := metrics.NewServer(sm, *metricsAddr)
	go func() {
		if err := metricsServer.Start(); err != nil {
			logger.Error("%v", err)
		}
	}()

	monitorServer := monitor.New(*listenAddr, ctrl, logger.WithPrefix("monitor"))
	go func() {
		if err := monitorServer.Start(); err != nil {
			logger.Error("monitor server: %v", err)
		}
	}()

	go func() {
		if *useRT {
			if err := rt.PinTickThread(rt.DefaultPriority); err != nil {
				logger.Warn("%v, continuing without real-time scheduling", err)
			}
			if err := rt.LockMemory(); err != nil {
				logger.Warn("%v", err)
			}
		}
		ctrl.Run(ctx)
	}()

	logger.Info("stepperd started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received %s, shutting down", sig)

	cancel()
	_ = monitorServer.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
