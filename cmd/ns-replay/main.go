package main

import (
	"Go2NetExporter/internal/config"
	"Go2NetExporter/internal/engine/accounting"
	"Go2NetExporter/internal/engine/flow"
	"Go2NetExporter/internal/engine/manager"
	"Go2NetExporter/internal/exposition"
	"Go2NetExporter/internal/factory"
	"Go2NetExporter/internal/localaddr"
	"Go2NetExporter/internal/logging"
	_ "Go2NetExporter/internal/writer" // Registers the snapshot writers
	"Go2NetExporter/pkg/pcap"
	"flag"
	"fmt"
	"os"
	"strings"
)

func main() {
	filter := flag.String("filter", "", "BPF filter applied to the capture file.")
	localList := flag.String("local", "", "Comma separated addresses treated as this machine. Defaults to the interfaces of this host.")
	configPath := flag.String("config", "", "Optional YAML config for history sizes and snapshot writers.")
	name := flag.String("name", "replay", "Exporter name stamped on written snapshots.")
	debug := flag.Bool("debug", false, "Enable debug logging.")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <path_to_pcap_file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	pcapFilePath := flag.Arg(0)

	logger, err := logging.New(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	// 1. Load configuration
	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	var local *localaddr.Set
	if *localList != "" {
		local, err = localaddr.Parse(strings.Split(*localList, ","))
	} else if len(cfg.LocalAddresses) > 0 {
		local, err = localaddr.Parse(cfg.LocalAddresses)
	} else {
		local, err = localaddr.Discover()
	}
	if err != nil {
		log.Fatalf("Failed to resolve local addresses: %v", err)
	}

	// 2. Initialize modules
	ttl, _ := cfg.HistoryTTL()
	table := flow.NewTable(cfg.Table.NumShards, flow.StreamConfig{
		HistoryCapacity: cfg.History.Capacity,
		HistoryTTL:      ttl,
		MaxPending:      cfg.RTT.MaxPending,
		MaxSamples:      cfg.RTT.MaxSamples,
	})
	writers, err := factory.Create(cfg.Writers, *name, log)
	if err != nil {
		log.Fatalf("Failed to create writers: %v", err)
	}
	mgr := manager.NewManager(manager.Options{
		Name:      *name,
		QueueSize: cfg.Manager.QueueSize,
		Engine:    accounting.New(table, local),
		Writers:   writers,
		Log:       log,
	})

	reader, err := pcap.OpenFile(pcapFilePath, *filter)
	if err != nil {
		log.Fatalf("Failed to open pcap file: %v", err)
	}
	defer reader.Close()
	log.Infof("Reading packets from '%s'...", pcapFilePath)

	// 3. Feed every packet through the pipeline
	mgr.Start()
	count := 0
	for p := range reader.Packets() {
		mgr.Feed(p)
		count++
	}
	log.Infof("Finished reading %d packets from pcap file.", count)

	// 4. Drain and print the exposition
	if err := mgr.Stop(); err != nil {
		log.Errorf("Error stopping manager: %v", err)
	}
	if err := exposition.NewRegistry(nil).Render(os.Stdout, table.Snapshot()); err != nil {
		log.Fatalf("Failed to render metrics: %v", err)
	}
}
