package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/daniellavrushin/weaver/config"
	"github.com/daniellavrushin/weaver/health"
	weaverhttp "github.com/daniellavrushin/weaver/http"
	"github.com/daniellavrushin/weaver/http/handler"
	"github.com/daniellavrushin/weaver/http/ws"
	"github.com/daniellavrushin/weaver/log"
	"github.com/daniellavrushin/weaver/metrics"
	"github.com/daniellavrushin/weaver/nfq"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"
)

var (
	cfg         = config.NewConfig()
	verboseFlag string
	showVersion bool
	checkOnly   bool
	Version     = "dev"
	Commit      = "none"
	Date        = "unknown"
)

var rootCmd = &cobra.Command{
	Use:          "weaver",
	Short:        "Weaver SYN persona handler",
	Long:         `Weaver rewrites the first SYN of queued TCP connections so their fingerprint matches a configured persona`,
	SilenceUsage: true,
	RunE:         runWeaver,
}

func init() {
	cfg.BindFlags(rootCmd)

	rootCmd.Flags().StringVar(&verboseFlag, "verbose", "info", "Set verbosity level (error, info, trace, debug)")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Show version and exit")
	rootCmd.Flags().BoolVar(&checkOnly, "check-config", false, "Validate and resolve the configuration, print a summary and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runWeaver(cmd *cobra.Command, args []string) error {
	if showVersion {
		fmt.Printf("weaver version: %s (%s) %s\n", Version, Commit, Date)
		return nil
	}
	handler.Version, handler.Commit, handler.Date = Version, Commit, Date

	level, err := log.ParseLevel(verboseFlag)
	if err != nil {
		return err
	}
	log.Init(os.Stderr, level, true)

	if err := cfg.Load(cmd.Flags()); err != nil {
		return err
	}
	if cmd.Flags().Changed("verbose") {
		cfg.ApplyLogLevel(verboseFlag)
	}
	if err := cfg.Validate(); err != nil {
		return log.Errorf("invalid configuration: %w", err)
	}

	rt, err := cfg.Resolve()
	if err != nil {
		return log.Errorf("invalid configuration: %w", err)
	}

	if checkOnly {
		fmt.Print(rt.Summary())
		return nil
	}

	hub := ws.NewLogHub()
	if err := initLogging(&cfg, hub); err != nil {
		return fmt.Errorf("logging initialization failed: %w", err)
	}
	printConfigDefaults(cmd)
	for _, line := range strings.Split(strings.TrimRight(rt.Summary(), "\n"), "\n") {
		log.Infof("%s", line)
	}

	registry := health.NewRegistry(rt.Queues)
	collector := metrics.NewCollector(rt.Queues)
	collector.RecordEvent("info", "weaver starting up")
	log.Event(log.LevelInfo, "startup", "instance", collector.Instance(), "version", Version,
		"queues", rt.Queues, "lab_mutation", rt.Filter.Enabled())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go collector.Run(ctx)

	log.Infof("Starting netfilter queue pool (%d queues)", len(rt.Bindings))
	pool := nfq.NewPool(rt.Bindings, rt.Options, rt.Filter, rt.Policy, registry, collector)
	if err := pool.Start(); err != nil {
		collector.RecordEvent("error", fmt.Sprintf("NFQueue start failed: %v", err))
		return log.Errorf("netfilter queue start failed: %w", err)
	}
	collector.RecordEvent("info", fmt.Sprintf("NFQueue started on %d queues", len(rt.Queues)))

	api := handler.NewAPIHandler(&cfg, rt, registry, collector, pool)
	httpServer, err := weaverhttp.StartServer(cfg.Observability.HealthBind, api, hub, collector)
	if err != nil {
		pool.Stop()
		collector.RecordEvent("error", fmt.Sprintf("Failed to start health server: %v", err))
		return log.Errorf("failed to start health server: %w", err)
	}

	log.Infof("weaver is running. Press Ctrl+C to stop")
	collector.RecordEvent("info", "weaver is fully operational")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, unix.SIGINT, unix.SIGTERM)
	sig := <-sigChan

	log.Infof("Received signal: %v, shutting down gracefully", sig)
	collector.RecordEvent("info", fmt.Sprintf("Shutdown initiated by signal: %v", sig))
	cancel()

	return gracefulShutdown(pool, httpServer)
}

func gracefulShutdown(pool *nfq.Pool, httpServer *weaverhttp.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	shutdownErrors := make(chan error, 2)

	if httpServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Infof("Shutting down health server...")
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				shutdownErrors <- log.Errorf("health server shutdown: %w", err)
			} else {
				log.Infof("Health server stopped")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Infof("Stopping netfilter queue pool...")
		pool.Stop()
	}()

	shutdownDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		close(shutdownErrors)
		var n int
		for range shutdownErrors {
			n++
		}
		if n > 0 {
			_ = log.Errorf("Shutdown completed with %d errors", n)
		} else {
			log.Infof("weaver stopped successfully")
		}

	case <-shutdownCtx.Done():
		_ = log.Errorf("Shutdown timeout reached, forcing exit")
		log.Flush()
		os.Exit(1)
	}

	log.CloseErrorFile()
	log.Flush()
	return nil
}

// initLogging applies the logging section. Init resets the sinks, so syslog
// and the websocket hub are attached after it.
func initLogging(cfg *config.Config, hub *ws.LogHub) error {
	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	log.Init(os.Stderr, level, cfg.Logging.Instaflush)
	log.Attach(hub.Writer())

	if cfg.Logging.Syslog {
		if err := log.EnableSyslog("weaver"); err != nil {
			return log.Errorf("Failed to enable syslog: %v", err)
		}
		log.Infof("Syslog enabled")
	}

	if cfg.Logging.ErrorFile != "" {
		if err := log.InitErrorFile(cfg.Logging.ErrorFile); err != nil {
			_ = log.Errorf("Failed to open error log file: %v", err)
		} else {
			log.Infof("Error logging to file: %s", cfg.Logging.ErrorFile)
		}
	}

	log.Tracef("Logging initialized at level %s", level)
	return nil
}

func printConfigDefaults(cmd *cobra.Command) {
	var all []*pflag.Flag
	cmd.InheritedFlags().VisitAll(func(f *pflag.Flag) { all = append(all, f) })
	cmd.Flags().VisitAll(func(f *pflag.Flag) { all = append(all, f) })
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	log.Infof("Effective CLI flags:")
	line := ""
	for _, f := range all {
		if line == "" {
			line = fmt.Sprintf("--%s=%s", f.Name, f.Value.String())
		} else {
			line += " " + fmt.Sprintf("--%s=%s", f.Name, f.Value.String())
		}
	}
	log.Infof("  %s", line)
}
