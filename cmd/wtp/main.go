package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/blinklabs-io/wtp/internal/api"
	"github.com/blinklabs-io/wtp/internal/config"
	"github.com/blinklabs-io/wtp/internal/cursor"
	"github.com/blinklabs-io/wtp/internal/follower"
	"github.com/blinklabs-io/wtp/internal/hub"
	"github.com/blinklabs-io/wtp/internal/logging"
	"github.com/blinklabs-io/wtp/internal/pipeline"
	"github.com/blinklabs-io/wtp/internal/store"
	"github.com/blinklabs-io/wtp/internal/version"

	_ "go.uber.org/automaxprocs"
)

const (
	programName = "wtp"
)

var cmdlineFlags struct {
	configFile string
	database   string
	socket     string
	start      string
	version    bool
}

func main() {
	flag.StringVar(&cmdlineFlags.configFile, "config", "example.toml", "path to config file to load")
	flag.StringVar(&cmdlineFlags.database, "database", "", "database connection string")
	flag.StringVar(&cmdlineFlags.socket, "socket", "", "upstream follower endpoint (path or host:port)")
	flag.StringVar(&cmdlineFlags.start, "start", "", "chain point to start from (slot:hash)")
	flag.BoolVar(&cmdlineFlags.version, "version", false, "show version")
	flag.Parse()

	if cmdlineFlags.version {
		fmt.Printf("%s %s\n", programName, version.GetVersionString())
		os.Exit(0)
	}

	// Load config
	cfg, err := config.Load(cmdlineFlags.configFile)
	if err != nil {
		fmt.Printf("Failed to load config: %s\n", err)
		os.Exit(1)
	}
	// Command-line flags beat the config file
	if cmdlineFlags.database != "" {
		cfg.Database.Url = cmdlineFlags.database
	}
	if cmdlineFlags.socket != "" {
		cfg.Follower.Socket = cmdlineFlags.socket
	}
	if cmdlineFlags.start != "" {
		cfg.Follower.Start = cmdlineFlags.start
	}

	// Configure logging
	logging.Configure()
	logger := logging.GetLogger()

	if cfg.Follower.Socket == "" {
		logger.Error("no follower endpoint configured")
		os.Exit(1)
	}
	if cfg.Database.Url == "" {
		logger.Error("no database configured")
		os.Exit(1)
	}

	ctx := context.Background()

	// Connect to the database and make sure the schema exists
	db, err := store.Connect(ctx, cfg.Database.Url)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.InitSchema(ctx); err != nil {
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	// Load the cursor store for resume points
	cursorStore := cursor.GetStore()
	if err := cursorStore.Load(); err != nil {
		logger.Error("failed to open cursor storage", "error", err)
		os.Exit(1)
	}
	defer cursorStore.Close()

	// Broadcast hub shared by the pipeline and the WebSocket handlers
	updateHub := hub.New()

	// Start the API server
	apiServer := api.New(db, updateHub)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("API server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Determine the follower start point: explicit flag first, then the
	// cursor from the previous run
	var followerOpts []follower.FollowerOptionFunc
	if cfg.Follower.Start != "" {
		slot, hash, err := parseStartPoint(cfg.Follower.Start)
		if err != nil {
			logger.Error("invalid start point", "error", err)
			os.Exit(1)
		}
		followerOpts = append(
			followerOpts,
			follower.WithIntersectPoint(slot, hash),
		)
	} else {
		slot, hash, err := cursorStore.Get()
		if err != nil {
			logger.Error("failed to read cursor", "error", err)
			os.Exit(1)
		}
		if slot > 0 {
			logger.Info(
				"found previous chainsync cursor",
				"slotNumber", slot,
				"blockHash", hash,
			)
			followerOpts = append(
				followerOpts,
				follower.WithIntersectPoint(slot, hash),
			)
		}
	}
	chainFollower := follower.New(cfg.Follower.Socket, followerOpts...)
	if err := chainFollower.Start(); err != nil {
		logger.Error("failed to start follower", "error", err)
		os.Exit(1)
	}

	// Upstream transport failures are fatal
	go func() {
		err, ok := <-chainFollower.ErrorChan()
		if ok {
			logger.Error("follower failed", "error", err)
			os.Exit(1)
		}
	}()

	// Run the pipeline in the main goroutine; it only returns on failure
	sink := pipeline.New(
		db,
		updateHub,
		cfg.Pools,
		true,
		pipeline.WithCursor(cursorStore),
	)
	if err := sink.Run(ctx, chainFollower.EventChan()); err != nil {
		logger.Error("pipeline failed", "error", err)
		os.Exit(1)
	}
}

// parseStartPoint splits a slot:hash chain point
func parseStartPoint(start string) (uint64, string, error) {
	parts := strings.SplitN(start, ":", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("expected slot:hash, got %q", start)
	}
	slot, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid slot %q: %w", parts[0], err)
	}
	return slot, parts[1], nil
}
