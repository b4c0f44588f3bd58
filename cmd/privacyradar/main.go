// Command privacyradar runs the packet-to-process correlation daemon, and
// generates or compacts its snapshot-history reports.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/madhurdeepjain/privacyradar-core/internal/analyzer"
	"github.com/madhurdeepjain/privacyradar-core/internal/config"
	"github.com/madhurdeepjain/privacyradar-core/internal/database"
	"github.com/madhurdeepjain/privacyradar-core/internal/ifaces"
	"github.com/madhurdeepjain/privacyradar-core/internal/model"
	"github.com/madhurdeepjain/privacyradar-core/internal/snapshot"
	"github.com/madhurdeepjain/privacyradar-core/internal/web"
	"github.com/madhurdeepjain/privacyradar-core/pkg/cli"
	"github.com/madhurdeepjain/privacyradar-core/pkg/version"
)

func printUsage() {
	fmt.Printf(`PrivacyRadar - Packet-to-Process Traffic Correlation %s

USAGE:
    privacyradar <command> [options]

COMMANDS:
    start        Run the capture/correlation daemon and web server
    report       Generate an HTML report from the snapshot history
    compact      Roll snapshot-history rows into hourly summaries
    version      Print build information

`, version.GetBuildInfo().Version)
}

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	log.SetDefault(logger)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "start":
		runStart(logger, os.Args[2:])
	case "report":
		runReport(os.Args[2:])
	case "compact":
		runCompact(os.Args[2:])
	case "version", "-v", "--version":
		fmt.Print(version.FormatInfo())
	case "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runStart(logger *log.Logger, args []string) {
	defaults := config.Default()

	fs := flag.NewFlagSet("start", flag.ExitOnError)
	interfaceName := fs.String("interface", defaults.Interface, "Network interface to monitor (best-effort default when empty)")
	debug := fs.Bool("debug", defaults.Debug, "Enable debug logs")
	dbPath := fs.String("db", defaults.DBPath, "Path to the snapshot-history database (empty disables persistence)")
	port := fs.Int("port", defaults.Port, "Web server port")
	snapshotSeconds := fs.Int("snapshot-interval", int(defaults.SnapshotInterval/time.Second), "Seconds between published snapshots (3-5 recommended)")
	fs.Parse(args)

	cfg := config.Config{
		Interface:        *interfaceName,
		Debug:            *debug,
		DBPath:           *dbPath,
		Port:             *port,
		SnapshotInterval: time.Duration(*snapshotSeconds) * time.Second,
	}

	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	iface, localIPs, err := resolveInterface(cfg.Interface)
	if err != nil {
		log.Error("failed to resolve capture interface", "error", err)
		os.Exit(1)
	}
	log.Info("starting privacyradar", "version", version.GetBuildInfo().Version, "interface", iface, "local_ips", localIPs)

	var db *database.DB
	if cfg.DBPath != "" {
		db, err = database.New(cfg.DBPath)
		if err != nil {
			log.Error("failed to open snapshot-history database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	server := web.NewServer(db, cfg.Port, logger, version.GetBuildInfo().Version)
	database.SetEventPublisher(server.Hub())

	onSnapshot := func(snap snapshot.Snapshot) {
		database.PublishEvent(snap)
		if db == nil {
			return
		}
		if err := db.RecordSnapshot(snap); err != nil {
			logger.Error("failed to record snapshot", "error", err)
		}
	}
	onPacketBatch := func(batch []*model.PacketRecord) {
		database.PublishEvent(batch)
	}

	runner := analyzer.New(logger, cfg.SnapshotInterval, onSnapshot, onPacketBatch)
	if err := runner.Start(iface, localIPs); err != nil {
		log.Error("failed to start analyzer", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := server.Start(ctx); err != nil {
			logger.Error("web server stopped with error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	cancel()
	runner.Stop()
}

func runReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	dbPath := fs.String("db", "privacyradar.db", "Path to the database file")
	outputPath := fs.String("output", "report.html", "Path to the output HTML file")
	since := fs.String("since", "24h", "Time range for the report (e.g., 1h, 24h, 7d)")
	fs.Parse(args)

	if err := cli.RunReport(*dbPath, *outputPath, *since); err != nil {
		log.Error("failed to generate report", "error", err)
		os.Exit(1)
	}
	log.Info("report generated", "output", *outputPath)
}

func runCompact(args []string) {
	fs := flag.NewFlagSet("compact", flag.ExitOnError)
	dbPath := fs.String("db", "privacyradar.db", "Path to the database file")
	olderThan := fs.String("older-than", "24h", "Compact rows older than this (e.g., 1h, 24h, 7d)")
	dryRun := fs.Bool("dry-run", false, "Show what would be compacted without making changes")
	fs.Parse(args)

	if err := cli.RunCompact(*dbPath, *olderThan, *dryRun); err != nil {
		log.Error("compaction failed", "error", err)
		os.Exit(1)
	}
}

// resolveInterface picks the capture interface and its bound addresses:
// an explicitly named interface, or the best-effort default route
// interface (§4 "Interface Enumerator").
func resolveInterface(name string) (string, []string, error) {
	all, err := ifaces.List()
	if err != nil {
		return "", nil, err
	}

	if name == "" {
		name, err = ifaces.Default()
		if err != nil {
			return "", nil, err
		}
	}

	for _, iface := range all {
		if iface.Name == name {
			return name, iface.Addresses, nil
		}
	}
	return "", nil, fmt.Errorf("interface %q not found", name)
}
