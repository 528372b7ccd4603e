package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/twinlabs/twind/internal/api"
	"github.com/twinlabs/twind/internal/config"
	"github.com/twinlabs/twind/internal/history"
	"github.com/twinlabs/twind/internal/ingest"
	"github.com/twinlabs/twind/internal/persona"
	"github.com/twinlabs/twind/internal/proxy"
	"github.com/twinlabs/twind/internal/sentiment"
	"github.com/twinlabs/twind/internal/sharing"
	"github.com/twinlabs/twind/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the twind server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running twind server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show twind system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "twind.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// historyStore picks Redis when an address is configured and falls back to
// the in-process store otherwise.
func historyStore(ctx context.Context, cfg config.Config) history.Store {
	ttl, err := time.ParseDuration(cfg.Redis.TTL)
	if err != nil || ttl <= 0 {
		slog.Warn("invalid history TTL, using default", "value", cfg.Redis.TTL)
		ttl = history.DefaultTTL
	}

	if cfg.Redis.Addr != "" {
		rs := history.NewRedisStore(cfg.Redis.Addr, cfg.History.Limit, ttl)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rs.Ping(pingCtx); err != nil {
			slog.Warn("redis unreachable, using in-process session history", "addr", cfg.Redis.Addr, "error", err)
		} else {
			slog.Info("session history backed by redis", "addr", cfg.Redis.Addr)
			return rs
		}
	}
	return history.NewMemoryStore(cfg.History.Limit, ttl)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "twind version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	apiToken, err := config.EnsureAPIToken()
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Check if a server is already running via the health endpoint before
	// claiming the PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("twind is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("twind is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	hist := historyStore(ctx, cfg)
	if rs, ok := hist.(*history.RedisStore); ok {
		defer rs.Close()
	}

	engine := persona.NewEngine(store)
	llm := proxy.NewClient(cfg.Proxy.OpenRouterAPIKey)
	if !llm.Configured() {
		slog.Warn("no OpenRouter API key configured, consultations and sentiment analysis are disabled")
	}
	shares := sharing.NewService(store)

	handler := api.NewAppHandler(api.AppDeps{
		Store:   store,
		Engine:  engine,
		History: hist,
		LLM:     llm,
		Shares:  shares,
		Model:   cfg.Proxy.Model,
		Token:   apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	analyzer := sentiment.NewAnalyzer(llm, cfg.Proxy.Model)
	worker := ingest.NewWorker(store, ingest.NewHTTPFetcher(), analyzer, 500*time.Millisecond)

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:  store,
		Engine: engine,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "twind listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	g.Go(func() error {
		slog.Info("MCP server started (stdio transport)")
		if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("twind is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop twind (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to twind (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.Redis.Addr != "" {
		printStatus("History", "redis at %s", cfg.Redis.Addr)
	} else {
		printStatus("History", "in-process (limit %d, ttl %s)", cfg.History.Limit, cfg.Redis.TTL)
	}
	printStatus("Model", "%s", cfg.Proxy.Model)
	if cfg.Proxy.OpenRouterAPIKey == "" {
		printStatus("OpenRouter", "no API key configured")
	} else {
		printStatus("OpenRouter", "configured")
	}

	if running {
		if c, err := newAPIClient(); err == nil {
			resp, err := c.get(context.Background(), "/data-sources")
			if err == nil {
				var sources []struct {
					Status string `json:"status"`
				}
				if decodeJSON(resp, &sources) == nil {
					active := 0
					for _, s := range sources {
						if s.Status == "active" {
							active++
						}
					}
					printStatus("Data sources", "%d (%d active)", len(sources), active)
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
