package main

import (
	"Go2NetExporter/internal/config"
	"Go2NetExporter/internal/localaddr"
	"Go2NetExporter/internal/logging"
	"Go2NetExporter/internal/supervisor"
	"Go2NetExporter/pkg/pcap"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file. Environment variables override it.")
	envFile := flag.String("env-file", ".env", "Dotenv file read when no PACKET_FILTER_<name> variable is set.")
	flag.Parse()

	// 1. Load configuration
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
	}
	environ, err := config.WithDotEnv(*envFile, os.Environ())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ApplyEnv(environ); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to apply environment: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	if len(cfg.Filters) == 0 {
		log.Warnf("No exporters configured; set %s<name> variables or filters in the config file.", config.FilterEnvPrefix)
	}

	// 2. Resolve which addresses are this machine's
	var local *localaddr.Set
	if len(cfg.LocalAddresses) > 0 {
		local, err = localaddr.Parse(cfg.LocalAddresses)
	} else {
		local, err = localaddr.Discover()
	}
	if err != nil {
		log.Fatalf("Failed to resolve local addresses: %v", err)
	}
	log.Infof("Accounting against %d local addresses.", local.Len())

	timeout, _ := cfg.CaptureTimeout()
	open := func(filter string) (pcap.Source, error) {
		return pcap.OpenLive(pcap.LiveOptions{
			Interface:   cfg.Capture.Interface,
			SnapshotLen: cfg.Capture.SnapshotLen,
			Promiscuous: cfg.Capture.Promiscuous,
			Timeout:     timeout,
			Filter:      filter,
		})
	}

	// 3. Register one exporter per filter
	sup := supervisor.New(supervisor.Options{
		Config: cfg,
		Open:   open,
		Local:  local,
		Log:    log,
	})
	for _, f := range cfg.Filters {
		sup.NewExporter(f.Name, f.Expression)
		log.Infof("Registered exporter %s with filter %q", f.Name, f.Expression)
	}

	// 4. Run until a shutdown signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sup.Run(ctx); err != nil {
		log.Fatalf("Supervisor failed: %v", err)
	}
	log.Info("Shutdown complete.")
}
