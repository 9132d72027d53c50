// Command orchestrator is the runtime's wiring entrypoint: it builds the
// Dispatcher and registers the Pipeline, Graph, and Retrieval engines
// behind it. CLI argument parsing, HTTP transport, and concrete
// model-provider/embedding clients are deliberately out of scope
// — those are external collaborators an embedder supplies through
// Dependencies; this binary wires what it can construct for real and
// leaves the rest as explicit nil-able seams rather than fabricating
// stand-ins for them.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentic-orchestration/runtime/internal/config"
	"github.com/agentic-orchestration/runtime/internal/dispatch"
	"github.com/agentic-orchestration/runtime/internal/retrieval/fetchref"
	"github.com/agentic-orchestration/runtime/internal/trace"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadEnv(os.Getenv("ENV_FILE")); err != nil {
		logger.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(os.Getenv("PIPELINE_CONFIG_PATH"))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	_, shutdownTracer, err := trace.NewTracerProvider(ctx, trace.ProviderConfig{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		logger.Error("failed to build tracer provider", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	metrics, err := dispatch.NewMetrics(cfg.ServiceName)
	if err != nil {
		logger.Error("failed to build dispatcher metrics", "error", err)
		os.Exit(1)
	}

	d := dispatch.New().
		WithMetrics(metrics).
		WithRateLimit(cfg.RateLimitRefillPerSecond, cfg.RateLimitBurst)

	// Deps leaves Completer/EmbeddingProvider/Searcher unconfigured by this
	// binary: those require external API credentials this binary has no
	// opinion about. Fetcher needs no credentials, so it's wired for real
	// with fetchref's readability-backed implementation. Wire registers only
	// the pipelines whose required collaborators are present, and logs the
	// rest as unconfigured rather than registering a handler that would
	// fail every request.
	deps := Dependencies{Fetcher: fetchref.New()}
	registered := Wire(d, cfg, deps)
	for _, name := range []string{"graph", "pipeline", "retrieval"} {
		if registered[name] {
			logger.Info("pipeline registered", "pipeline", name)
		} else {
			logger.Warn("pipeline not registered: missing collaborator", "pipeline", name)
		}
	}

	logger.Info("orchestrator wired and idle", "service", cfg.ServiceName)
	<-ctx.Done()
	logger.Info("shutting down")
}
