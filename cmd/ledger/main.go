package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guardrail-systems/ledger/pkg/api"
	"github.com/guardrail-systems/ledger/pkg/config"
	"github.com/guardrail-systems/ledger/pkg/observability"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// startServer is a variable so tests can stub it out.
var startServer = runServer

// Run is the entrypoint, factored out from main so it can be exercised
// with arbitrary args and without calling os.Exit.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		startServer()
		return 0
	}

	switch args[1] {
	case "server", "serve":
		startServer()
		return 0
	case "doctor":
		return runDoctorCmd(stdout, stderr)
	case "health":
		return runHealthCmd(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if len(args[1]) > 0 && args[1][0] == '-' {
			startServer()
			return 0
		}
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorGreen = "\033[32m"
	ColorCyan  = "\033[36m"
	ColorGray  = "\033[37m"
	ColorBlue  = "\033[34m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sGuardrail Ledger%s\n", ColorBold+ColorBlue, ColorReset)
	fmt.Fprintf(w, "%sTamper-evident audit ledger, Merkle anchoring, and policy decisions.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  ledger <command>")
	fmt.Fprintln(w, "")
	printSection(w, "COMMANDS")
	printCommand(w, "server", "Run the HTTP API (default)")
	printCommand(w, "doctor", "Check configuration and subsystem health")
	printCommand(w, "health", "Check a running server's health endpoint")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-10s%s %s\n", ColorGreen, name, ColorReset, desc)
}

func runServer() {
	fmt.Fprintf(os.Stdout, "%sGuardrail Ledger starting...%s\n", ColorBold+ColorBlue, ColorReset)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	services, err := NewServices(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("service init failed: %v", err)
	}
	defer services.Close()

	otelConfig := observability.DefaultConfig()
	otelConfig.Enabled = cfg.OTELEnabled
	otelConfig.OTLPEndpoint = cfg.OTELEndpoint
	provider, err := observability.New(ctx, otelConfig)
	if err != nil {
		log.Fatalf("observability init failed: %v", err)
	}
	defer provider.Shutdown(context.Background())

	apiServer := &api.Server{
		Ledger:    services.Ledger,
		Decisions: services.Decisions,
		Policies:  services.Policies,
		Evaluator: services.Evaluator,
		Batcher:   services.Batcher,
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      provider.Middleware(apiServer.Router()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("api server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server failed", "error", err)
		}
	}()

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	healthServer := &http.Server{Addr: ":8081", Handler: healthMux}
	go func() {
		logger.Info("health server listening", "addr", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", "error", err)
		}
	}()

	log.Println("[ledger] press ctrl+c to stop")
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("[ledger] shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = healthServer.Shutdown(shutdownCtx)
}

func runHealthCmd(out, errOut io.Writer) int {
	resp, err := http.Get("http://localhost:8081/health")
	if err != nil {
		fmt.Fprintf(errOut, "health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(errOut, "health check failed: status %d\n", resp.StatusCode)
		return 1
	}
	fmt.Fprintln(out, "OK")
	return 0
}

func runDoctorCmd(out, errOut io.Writer) int {
	cfg := config.Load()
	fmt.Fprintf(out, "database:            %s\n", cfg.DatabaseURL)
	fmt.Fprintf(out, "evm substrate:       enabled=%v rpc=%s\n", cfg.EVMEnabled, cfg.EVMRPCURL)
	fmt.Fprintf(out, "solana substrate:    enabled=%v rpc=%s\n", cfg.SolanaEnabled, cfg.SolanaRPCURL)
	fmt.Fprintf(out, "anchor batch size:   %d\n", cfg.BatchSize)
	fmt.Fprintf(out, "anchor cron spec:    %s\n", cfg.AnchorCronSpec)
	fmt.Fprintf(out, "keystore path:       %s\n", cfg.KeystorePath)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	services, err := NewServices(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		fmt.Fprintf(errOut, "subsystem check failed: %v\n", err)
		return 1
	}
	defer services.Close()

	fmt.Fprintln(out, "all subsystems initialized successfully")
	return 0
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
