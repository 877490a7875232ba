package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nlcache/nlcache/pkg/api"
	"github.com/nlcache/nlcache/pkg/cleanup"
	"github.com/nlcache/nlcache/pkg/config"
	"github.com/nlcache/nlcache/pkg/driver"
	"github.com/nlcache/nlcache/pkg/events"
	"github.com/nlcache/nlcache/pkg/log"
	"github.com/nlcache/nlcache/pkg/reconciler"
	"github.com/nlcache/nlcache/pkg/recordstore"
	"github.com/nlcache/nlcache/pkg/volume"
	"github.com/nlcache/nlcache/pkg/worker"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var flags struct {
	configFile        string
	csiEndpoint       string
	nodeName          string
	namespace         string
	basePath          string
	httpAddr          string
	workerInterval    time.Duration
	reconcileInterval time.Duration
	cleanupTTL        time.Duration
	standalonePath    string
	members           []string
	logLevel          string
	logJSON           bool
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nlcache",
	Short: "CSI driver for node-local ephemeral cache volumes",
	Long: `nlcache provisions node-local scratch directories as CSI volumes and
coordinates their deletion across every node that ever held a copy.

Coordination runs over versioned records in the orchestrator's API with
optimistic concurrency only: no leader, no locks, no extra database.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"nlcache version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "Path to yaml config file")
	pf.StringVar(&flags.csiEndpoint, "csi-socket", config.DefaultCSIEndpoint, "CSI endpoint to serve on")
	pf.StringVar(&flags.nodeName, "node-name", "", "This node's name (env NODE_NAME)")
	pf.StringVar(&flags.namespace, "namespace", "", "Namespace for state records (env POD_NAMESPACE)")
	pf.StringVar(&flags.httpAddr, "http-addr", config.DefaultHTTPAddr, "Admin HTTP listen address")
	pf.StringVar(&flags.standalonePath, "standalone", "", "Run against a local bolt store at this path instead of the cluster API")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.BoolVar(&flags.logJSON, "log-json", true, "Log in JSON format")

	nodeCmd.Flags().StringVar(&flags.basePath, "base-path", config.DefaultBasePath, "Base directory for volume data")
	nodeCmd.Flags().DurationVar(&flags.workerInterval, "worker-interval", config.DefaultWorkerInterval, "Cleanup worker scan interval")

	controllerCmd.Flags().DurationVar(&flags.reconcileInterval, "reconcile-interval", config.DefaultReconcileInterval, "Reconciler sweep interval")
	controllerCmd.Flags().DurationVar(&flags.cleanupTTL, "cleanup-ttl", config.DefaultCleanupTTL, "Max age of an unresolved cleanup record before forced pruning (0 disables)")
	controllerCmd.Flags().StringSliceVar(&flags.members, "members", nil, "Cluster member names for standalone mode (defaults to --node-name)")

	rootCmd.AddCommand(controllerCmd)
	rootCmd.AddCommand(nodeCmd)
}

// loadConfig merges the optional config file with flags; flags set
// explicitly on the command line win
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return cfg, err
	}

	set := func(name string) bool { return cmd.Flags().Changed(name) || cmd.Root().PersistentFlags().Changed(name) }
	if set("csi-socket") {
		cfg.CSIEndpoint = flags.csiEndpoint
	}
	if set("node-name") {
		cfg.NodeName = flags.nodeName
	}
	if set("namespace") {
		cfg.Namespace = flags.namespace
	}
	if set("base-path") {
		cfg.BasePath = flags.basePath
	}
	if set("http-addr") {
		cfg.HTTPAddr = flags.httpAddr
	}
	if set("worker-interval") {
		cfg.WorkerInterval = flags.workerInterval
	}
	if set("reconcile-interval") {
		cfg.ReconcileInterval = flags.reconcileInterval
	}
	if set("cleanup-ttl") {
		cfg.CleanupTTL = flags.cleanupTTL
	}
	if set("standalone") {
		cfg.StandalonePath = flags.standalonePath
	}
	if set("members") {
		cfg.Members = flags.members
	}
	if set("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if set("log-json") {
		cfg.LogJSON = flags.logJSON
	}

	cfg.FillFromEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// openStore connects to the shared record store: the cluster API normally,
// or a local bolt file in standalone mode
func openStore(cfg config.Config) (recordstore.Store, error) {
	if cfg.StandalonePath != "" {
		return recordstore.NewBoltStore(cfg.StandalonePath, cfg.StandaloneMembers())
	}
	return recordstore.Connect(cfg.Namespace)
}

var controllerCmd = &cobra.Command{
	Use:   "controller",
	Short: "Run the CSI controller service and the cleanup reconciler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		// A standalone store with no membership would make the reconciler
		// see every pending node as departed and decommission them all
		if cfg.StandalonePath != "" && len(cfg.StandaloneMembers()) == 0 {
			return fmt.Errorf("standalone controller mode needs cluster membership (set --members or --node-name)")
		}
		log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
		driver.SetVersion(Version)

		store, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("failed to open record store: %w", err)
		}
		defer store.Close()

		broker := events.NewBroker()
		recorder := events.NewRecorder(broker, store)
		coordinator := cleanup.NewCoordinator(store, recorder)

		csiServer := driver.NewServer(cfg.CSIEndpoint,
			driver.NewIdentityServer(),
			driver.NewControllerServer(coordinator),
			nil,
		)
		recon := reconciler.New(store, recorder, cfg.ReconcileInterval, cfg.CleanupTTL)
		adminServer := api.NewServer(store, broker, Version)

		return run(cfg, csiServer, adminServer, recon.Run)
	},
}

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run the CSI node service and the local cleanup worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.NodeName == "" {
			return fmt.Errorf("node name is required (set --node-name or NODE_NAME)")
		}
		log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
		driver.SetVersion(Version)

		store, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("failed to open record store: %w", err)
		}
		defer store.Close()

		local, err := volume.NewLocalDriver(cfg.BasePath)
		if err != nil {
			return fmt.Errorf("failed to set up volume directory: %w", err)
		}

		broker := events.NewBroker()
		recorder := events.NewRecorder(broker, store)
		coordinator := cleanup.NewCoordinator(store, recorder)

		csiServer := driver.NewServer(cfg.CSIEndpoint,
			driver.NewIdentityServer(),
			nil,
			driver.NewNodeServer(local, coordinator, cfg.NodeName),
		)
		w := worker.New(store, local, recorder, cfg.NodeName, cfg.WorkerInterval)
		adminServer := api.NewServer(store, broker, Version)

		return run(cfg, csiServer, adminServer, w.Run)
	},
}

// run starts the CSI server, the admin server, and the control loop, then
// blocks until a termination signal or a server failure
func run(cfg config.Config, csiServer *driver.Server, adminServer *api.Server, loop func(ctx context.Context)) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		if err := csiServer.Start(); err != nil {
			errCh <- fmt.Errorf("CSI server: %w", err)
		}
	}()
	go func() {
		if err := adminServer.Start(cfg.HTTPAddr); err != nil {
			errCh <- fmt.Errorf("admin server: %w", err)
		}
	}()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		log.Logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		runErr = err
		log.Logger.Error().Err(err).Msg("Server failed, shutting down")
	}

	cancel()
	<-loopDone
	csiServer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		log.Logger.Warn().Err(err).Msg("Admin server shutdown failed")
	}

	return runErr
}
