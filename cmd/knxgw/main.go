// knxgw bridges a single KNX TP1 line to MQTT: group-value telegrams
// decoded by the protocol stack become retained state publishes, and
// messages on the configured command topics become GroupValueWrite
// frames written back onto the bus.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dawret/knxgw/internal/application"
	"github.com/dawret/knxgw/internal/audit"
	"github.com/dawret/knxgw/internal/datalink"
	"github.com/dawret/knxgw/internal/frame"
	"github.com/dawret/knxgw/internal/gateway"
	"github.com/dawret/knxgw/internal/infrastructure/config"
	"github.com/dawret/knxgw/internal/infrastructure/database"
	"github.com/dawret/knxgw/internal/infrastructure/influxdb"
	"github.com/dawret/knxgw/internal/infrastructure/logging"
	"github.com/dawret/knxgw/internal/infrastructure/mqtt"
	"github.com/dawret/knxgw/internal/network"
	"github.com/dawret/knxgw/internal/transceiver"
	"github.com/dawret/knxgw/internal/transport"
	_ "github.com/dawret/knxgw/migrations"
)

// Version information, set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the gateway's configuration file")
	flag.Parse()

	fmt.Printf("knxgw %s (%s) built %s\n", version, commit, date)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every layer of the protocol stack to MQTT and blocks until ctx
// is cancelled, then tears everything down in reverse order.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := logging.New(cfg.Logging, version)
	logger.Info("starting knxgw", "config", configPath)

	nodeAddress, err := frame.ParseIndividualAddress(cfg.Node.Address)
	if err != nil {
		return fmt.Errorf("parsing node.address: %w", err)
	}

	devices, err := gateway.NewDeviceTable(cfg.Node.Devices)
	if err != nil {
		return fmt.Errorf("building device table: %w", err)
	}

	var auditRepo *auditHandle
	if cfg.Audit.Enabled {
		auditRepo, err = openAudit(cfg.Audit)
		if err != nil {
			return fmt.Errorf("opening audit database: %w", err)
		}
		defer auditRepo.db.Close()
	}

	var metricsClient *influxdb.Client
	if cfg.Metrics.Enabled {
		metricsClient, err = influxdb.Connect(ctx, cfg.Metrics)
		if err != nil {
			return fmt.Errorf("connecting to metrics backend: %w", err)
		}
		defer metricsClient.Close()
	}

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT broker: %w", err)
	}
	mqttClient.SetLogger(logger)
	defer mqttClient.Close()

	port, err := transceiver.Open(cfg.Serial.Device)
	if err != nil {
		return fmt.Errorf("opening transceiver port %s: %w", cfg.Serial.Device, err)
	}
	defer port.Close()

	pool := frame.NewPool(cfg.Serial.BufferPool)
	driver := transceiver.New(port, pool, nodeAddress, logger, cfg.Transport.InboundQueue)

	link := datalink.New(driver, cfg.Diag.BusMonitor, cfg.Diag.BusmonQueue)
	nw := network.New(link, cfg.Transport.InboundQueue)
	tr := transport.New(nw, pool, nodeAddress, logger, cfg.Transport.InboundQueue)
	facade := application.New(tr, pool, devices, logger, cfg.Transport.ApplicationQueue)

	var recorder gateway.Recorder
	if auditRepo != nil || metricsClient != nil {
		var auditDep gateway.AuditRepository
		if auditRepo != nil {
			auditDep = auditRepo.repo
		}
		var metricsDep gateway.MetricsWriter
		if metricsClient != nil {
			metricsDep = metricsClient
		}
		recorder = gateway.NewCompositeRecorder(auditDep, metricsDep)
	}

	forwarder := gateway.NewForwarder(facade, mqttClient, devices, recorder, logger)
	if err := forwarder.Start(); err != nil {
		return fmt.Errorf("starting MQTT forwarder: %w", err)
	}

	var backendAudit gateway.BackendHealth
	if auditRepo != nil {
		backendAudit = auditRepo.db
	}
	var backendMetrics gateway.BackendHealth
	if metricsClient != nil {
		backendMetrics = metricsClient
	}
	health := gateway.NewHealthReporter(gateway.HealthReporterConfig{
		Publisher: mqttClient,
		Transport: tr,
		Audit:     backendAudit,
		Metrics:   backendMetrics,
	})
	health.Start(ctx)
	defer health.Stop()

	var busMonitor *gateway.BusMonitor
	if cfg.Diag.BusMonitor {
		busMonitor = gateway.NewBusMonitor(link, logger)
	}

	var wg sync.WaitGroup
	runStage := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				logger.Error("stage exited", "stage", name, "error", err)
			}
		}()
	}

	runStage("driver", driver.Run)
	runStage("datalink", link.Run)
	runStage("network", nw.Run)
	runStage("transport", tr.Run)
	runStage("application", facade.Run)
	runStage("forwarder", forwarder.Run)
	if busMonitor != nil {
		runStage("busmonitor", busMonitor.Run)
	}

	logger.Info("knxgw ready", "node_address", cfg.Node.Address, "devices", len(cfg.Node.Devices))

	<-ctx.Done()
	logger.Info("shutdown signal received, draining stages")
	wg.Wait()

	logger.Info("knxgw stopped")
	return nil
}

// auditHandle couples the audit database connection to the repository
// built on top of it, so both can be closed/referenced from run without
// re-deriving one from the other.
type auditHandle struct {
	db   *database.DB
	repo *audit.SQLiteRepository
}

func openAudit(cfg config.AuditConfig) (*auditHandle, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &auditHandle{db: db, repo: audit.NewSQLiteRepository(db.DB)}, nil
}
