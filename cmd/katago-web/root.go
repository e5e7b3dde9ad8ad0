package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/dmmcquay/katago-web/internal/cache"
	"github.com/dmmcquay/katago-web/internal/config"
	"github.com/dmmcquay/katago-web/internal/health"
	"github.com/dmmcquay/katago-web/internal/katago"
	"github.com/dmmcquay/katago-web/internal/logging"
	mcptools "github.com/dmmcquay/katago-web/internal/mcp"
	"github.com/dmmcquay/katago-web/internal/metrics"
	"github.com/dmmcquay/katago-web/internal/ratelimit"
	httpserver "github.com/dmmcquay/katago-web/internal/server"
	"github.com/dmmcquay/katago-web/internal/shutdown"
)

type options struct {
	configPath string
	addr       string
	staticDir  string
	mcp        bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "katago-web",
		Short: "Web front end and JSON API for the KataGo Go engine",
		Long: `katago-web serves a browser front end and a JSON API that relays
analysis requests to a KataGo engine running as a GTP child process.
With --mcp the same operations are exposed as MCP tools over stdio.`,
		Version:       config.Default().Server.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}
	cmd.SetVersionTemplate(fmt.Sprintf("katago-web version {{.Version}}\nGit commit: %s\nBuild time: %s\n", GitCommit, BuildTime))

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "",
		"config file (default: $KATAGO_WEB_CONFIG, ./config.json or ~/.katago-web/config.json)")
	cmd.Flags().StringVar(&opts.addr, "addr", "",
		"listen address (default localhost:8000)")
	cmd.Flags().StringVar(&opts.staticDir, "static-dir", "",
		"directory of front-end files to serve")
	cmd.Flags().BoolVar(&opts.mcp, "mcp", false,
		"serve MCP tools over stdio instead of HTTP")

	return cmd
}

func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = opts.addr
	}
	if cmd.Flags().Changed("static-dir") {
		cfg.Server.StaticDir = opts.staticDir
	}
	return cfg, nil
}

func run(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return err
	}

	logger := logging.NewLoggerFromConfig(logging.ConfigFromApp(cfg))
	logger.Info("Starting katago-web",
		"version", cfg.Server.Version,
		"commit", GitCommit,
		"built", BuildTime,
	)

	detectEngine(cfg, logger)

	collector := metrics.NewPrometheusCollector()

	session := katago.NewSession(&cfg.Engine, katago.NewExecLauncher(&cfg.Engine), logger, collector)
	queue := katago.NewQueue(cfg.Engine.QueueSize, logger, collector)
	results := cache.NewManager[*katago.AnalysisResult](&cfg.Cache, logger, collector)
	engine := katago.NewEngine(session, queue, results, logger, collector)
	supervisor := katago.NewSupervisor(session, &cfg.Engine, logger, collector)
	limiter := ratelimit.NewLimiter(&cfg.RateLimit, logger, collector)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Hooks run in reverse: front ends first, the engine last.
	shutdowns := shutdown.NewManager(logger)
	shutdowns.Register("engine", func(context.Context) error {
		return engine.Close()
	})
	shutdowns.Register("supervisor", func(context.Context) error {
		cancel()
		return supervisor.Stop()
	})

	if err := supervisor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start supervisor: %w", err)
	}

	if opts.mcp {
		return serveMCP(ctx, cfg, engine, limiter, collector, logger, shutdowns)
	}
	return serveHTTP(cfg, engine, limiter, collector, logger, shutdowns)
}

// detectEngine fills engine paths the configuration leaves open from a
// local KataGo installation.
func detectEngine(cfg *config.Config, logger logging.ContextLogger) {
	logger.Info("Detecting KataGo installation...")
	found := katago.Detect(cfg.GetKataGoHomeDir())
	for _, problem := range found.Problems {
		logger.Warn("KataGo detection", "problem", problem)
	}
	katago.ApplyDetected(&cfg.Engine, found)

	logger.Info("Engine configuration",
		"binary", cfg.Engine.BinaryPath,
		"model", cfg.Engine.ModelPath,
		"config", cfg.Engine.ConfigPath,
	)
	if cfg.Engine.ModelPath == "" {
		logger.Warn("No KataGo model found, the engine will not start until one is configured")
		logger.Info("\n%s", katago.InstallInstructions())
	}
}

func engineCheck(engine katago.Service) health.Check {
	return func(ctx context.Context) error {
		st := engine.Status()
		switch st.State {
		case katago.StateReady:
			return nil
		case katago.StateStarting:
			return health.Degraded("engine starting")
		default:
			if st.LastError != "" {
				return fmt.Errorf("engine %s: %s", st.State, st.LastError)
			}
			return fmt.Errorf("engine %s", st.State)
		}
	}
}

func serveHTTP(cfg *config.Config, engine *katago.Engine, limiter *ratelimit.Limiter, collector *metrics.PrometheusCollector, logger logging.ContextLogger, shutdowns *shutdown.Manager) error {
	checker := health.NewChecker(logger, cfg.Server.Version)
	checker.RegisterCheck("engine", engineCheck(engine))

	httpServer := httpserver.NewHTTPServer(&cfg.Server, engine, checker, limiter, logger, collector)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", "error", err)
		_ = shutdowns.Shutdown(config.Seconds(cfg.Server.ShutdownTimeout))
		return err
	}
	shutdowns.Register("http", httpServer.Stop)

	logger.Info("katago-web ready", "url", "http://"+httpServer.Addr())

	shutdowns.HandleSignals(config.Seconds(cfg.Server.ShutdownTimeout))
	<-shutdowns.Done()
	return nil
}

func serveMCP(ctx context.Context, cfg *config.Config, engine *katago.Engine, limiter *ratelimit.Limiter, collector *metrics.PrometheusCollector, logger logging.ContextLogger, shutdowns *shutdown.Manager) error {
	mcpServer := server.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
		server.WithRecovery(),
	)

	middleware := mcptools.NewMiddleware(logger, collector, limiter)
	toolsHandler := mcptools.NewToolsHandler(engine, logger)
	toolsHandler.SetMiddleware(middleware)
	toolsHandler.RegisterTools(mcpServer)

	healthTool := mcp.NewTool("health",
		mcp.WithDescription("Check server, engine and rate limit status"),
	)
	mcpServer.AddTool(healthTool, middleware.WrapTool("health", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(healthReport(cfg, engine, limiter)), nil
	}))

	shutdowns.HandleSignals(config.Seconds(cfg.Server.ShutdownTimeout))
	serveCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-shutdowns.Started():
			stop()
		case <-serveCtx.Done():
		}
	}()

	logger.Info("KataGo MCP server ready")
	err := server.NewStdioServer(mcpServer).Listen(serveCtx, os.Stdin, os.Stdout)
	if err != nil && serveCtx.Err() == nil {
		logger.Error("MCP server error", "error", err)
	}

	if shutdownErr := shutdowns.Shutdown(config.Seconds(cfg.Server.ShutdownTimeout)); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	if serveCtx.Err() != nil {
		return nil
	}
	return err
}

func healthReport(cfg *config.Config, engine katago.Service, limiter *ratelimit.Limiter) string {
	report := "katago-web Health Status\n"
	report += "========================\n"
	report += fmt.Sprintf("Server Version: %s\n", cfg.Server.Version)
	report += fmt.Sprintf("Git Commit: %s\n", GitCommit)
	report += fmt.Sprintf("Build Time: %s\n", BuildTime)
	report += "\nKataGo:\n"
	report += fmt.Sprintf("  Binary: %s\n", cfg.Engine.BinaryPath)
	report += fmt.Sprintf("  Model: %s\n", cfg.Engine.ModelPath)
	report += fmt.Sprintf("  Config: %s\n", cfg.Engine.ConfigPath)
	report += "\n" + mcptools.FormatStatus(engine.Status())

	rl := limiter.Status()
	report += "\nRate Limiting:\n"
	report += fmt.Sprintf("  Enabled: %v\n", rl.Enabled)
	if rl.Enabled {
		report += fmt.Sprintf("  Requests/min: %d\n", rl.RequestsPerMin)
		report += fmt.Sprintf("  Burst size: %d\n", rl.BurstSize)
		report += fmt.Sprintf("  Active clients: %d\n", rl.ActiveClients)
	}
	return report
}
