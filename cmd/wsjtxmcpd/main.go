// Command wsjtxmcpd is the control plane's entrypoint: it loads
// configuration, wires every internal package together, and runs until
// an operator signal or a fatal component error, in the teacher's own
// flag-parse-then-wire-everything-in-main style (main.go).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/SensorsIot/wsjt-x-MCP/internal/catserver"
	"github.com/SensorsIot/wsjt-x-MCP/internal/config"
	"github.com/SensorsIot/wsjt-x-MCP/internal/coordinator"
	"github.com/SensorsIot/wsjt-x-MCP/internal/dashboard"
	"github.com/SensorsIot/wsjt-x-MCP/internal/mcpserver"
	"github.com/SensorsIot/wsjt-x-MCP/internal/metrics"
	"github.com/SensorsIot/wsjt-x-MCP/internal/radiobackend"
	"github.com/SensorsIot/wsjt-x-MCP/internal/slicestore"
	"github.com/SensorsIot/wsjt-x-MCP/internal/supervisor"
	"github.com/SensorsIot/wsjt-x-MCP/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to configuration file")
	dataDir := flag.String("data-dir", ".", "Directory for generated per-instance decoder-app config files")
	debug := flag.Bool("debug", false, "Enable verbose logging")
	flag.Parse()

	logger := log.New(os.Stdout, "", log.LstdFlags)
	if *debug {
		logger.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("wsjtxmcpd: load config: %v", err)
	}

	if err := run(cfg, *dataDir, logger); err != nil {
		log.Fatalf("wsjtxmcpd: %v", err)
	}
}

func run(cfg *config.Config, dataDir string, logger *log.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sss := slicestore.New()

	reg := prometheus.NewRegistry()
	metricsRegistry := metrics.New(reg)

	flexHost := cfg.Flex.Host
	if cfg.Mode == config.ModeFlex {
		if discovered, err := radiobackend.DiscoverHost(ctx, 2*time.Second); err == nil {
			logger.Printf("wsjtxmcpd: discovered radio backend at %s, overriding configured %s", discovered, flexHost)
			flexHost = discovered
		} else {
			logger.Printf("wsjtxmcpd: no radio backend discovery broadcast heard, using configured host %s: %v", flexHost, err)
		}
	}

	rbc := radiobackend.New(flexHost, radiobackend.DefaultPort, sss, logger)
	cat := catserver.New(cfg.Flex.CATBasePort, sss, logger)

	tl, err := telemetry.New(config.DefaultTelemetryPort, logger)
	if err != nil {
		return fmt.Errorf("new telemetry listener: %w", err)
	}

	sup := supervisor.New(cfg.WSJTX.Path, logger)

	coord := coordinator.New(coordinator.Options{
		TelemetryBasePort: config.DefaultTelemetryPort + 1,
		CATBasePort:       cfg.Flex.CATBasePort,
		DecoderBinaryPath: cfg.WSJTX.Path,
		DataDir:           dataDir,
		MyCall:            cfg.Station.Callsign,
		MyGrid:            cfg.Station.Grid,
		StopTimeout:       supervisor.DefaultStopTimeout,
	}, sss, rbc, cat, sup, tl, metricsRegistry, logger)

	var mqttOpts *dashboard.MQTTOptions
	if cfg.Dashboard.MQTT.Broker != "" {
		mqttOpts = &dashboard.MQTTOptions{
			Broker:      cfg.Dashboard.MQTT.Broker,
			Username:    cfg.Dashboard.MQTT.Username,
			Password:    cfg.Dashboard.MQTT.Password,
			TopicPrefix: cfg.Dashboard.MQTT.TopicPrefix,
		}
	}
	dash, err := dashboard.New(coord, dashboard.Options{
		ADIFLogPath: cfg.Dashboard.ADIFLogPath,
		MQTT:        mqttOpts,
	}, logger)
	if err != nil {
		return fmt.Errorf("new dashboard server: %w", err)
	}
	coord.OnBusEvent(dash.OnBusEvent)
	defer dash.Close()

	mux := http.NewServeMux()
	mux.Handle("/", dash.Handler())
	mux.Handle("/metrics", metrics.Handler(reg))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Web.Port),
		Handler: mux,
	}

	mcp := mcpserver.New(coord)

	group, gctx := errgroup.WithContext(ctx)

	if cfg.Mode == config.ModeFlex {
		group.Go(func() error {
			rbc.Run(gctx)
			return nil
		})
	} else {
		logger.Printf("wsjtxmcpd: mode=%s, not dialing a Flex radio backend (rig %q driven by CAT only)", cfg.Mode, cfg.Standard.RigName)
	}
	group.Go(func() error {
		coord.Run(gctx)
		return nil
	})
	group.Go(func() error {
		if err := tl.Run(); err != nil {
			return fmt.Errorf("telemetry listener: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		logger.Printf("wsjtxmcpd: dashboard listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("dashboard http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		if err := mcp.Serve(gctx); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	group.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Printf("wsjtxmcpd: received %s, shutting down", sig)
		case <-gctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		tl.Stop()
		httpServer.Close()
		sup.StopAll(shutdownCtx, supervisor.DefaultStopTimeout)
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}
	return nil
}
