// Package twincore provides the HTTP server of the API.ai twin along with
// its shared middleware and response helpers.
package twincore

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Config holds the twin configuration, parsed from CLI flags.
type Config struct {
	Port     int
	Latency  time.Duration
	FailRate float64
	SeedFile string
	Token    string // when set, only this bearer token is accepted
	Verbose  bool
	Name     string    // twin name for logging
	Output   io.Writer // log destination, stdout when nil
}

// ParseFlags parses the twin CLI flags and returns a Config.
func ParseFlags(twinName string) *Config {
	cfg := &Config{Name: twinName}
	flag.IntVar(&cfg.Port, "port", 0, "HTTP listen port (default: auto-assigned)")
	flag.DurationVar(&cfg.Latency, "latency", 0, "Base simulated latency")
	flag.Float64Var(&cfg.FailRate, "fail-rate", 0.0, "Random failure rate 0.0-1.0")
	flag.StringVar(&cfg.SeedFile, "seed-file", "", "Path to JSON fixture for initial state")
	flag.StringVar(&cfg.Token, "token", "", "Only accept this developer token (default: any)")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Enable request/response logging")
	flag.Parse()

	if cfg.Port == 0 {
		if p := os.Getenv("PORT"); p != "" {
			fmt.Sscanf(p, "%d", &cfg.Port)
		}
	}

	return cfg
}

// Twin is the base server. It wraps a chi router with the common middleware
// and provides lifecycle management.
type Twin struct {
	Config *Config
	Router *chi.Mux
	Logger *slog.Logger
	mw     *Middleware
}

// New creates a new Twin with the given config.
func New(cfg *Config) *Twin {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))

	r := chi.NewRouter()
	mw := NewMiddleware(cfg, logger)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.RequestLog)
	r.Use(mw.LatencyInjection)
	r.Use(mw.RandomFailure)

	return &Twin{
		Config: cfg,
		Router: r,
		Logger: logger,
		mw:     mw,
	}
}

// Middleware returns the middleware instance for fault injection and the request log.
func (t *Twin) Middleware() *Middleware {
	return t.mw
}

// Serve starts the HTTP server and blocks until a shutdown signal.
func (t *Twin) Serve() error {
	addr := fmt.Sprintf(":%d", t.Config.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      t.Router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		t.Logger.Info("starting twin", "name", t.Config.Name, "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-done
	t.Logger.Info("shutting down twin", "name", t.Config.Name)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// ServeHTTP implements http.Handler so Twin can be used directly in tests.
func (t *Twin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.Router.ServeHTTP(w, r)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// StatusBody is the response envelope API.ai attaches to writes and errors.
func StatusBody(code int, errorType, details string) map[string]any {
	status := map[string]any{
		"code":      code,
		"errorType": errorType,
	}
	if details != "" {
		status["errorDetails"] = details
	}
	return map[string]any{
		"id":        uuid.NewString(),
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"status":    status,
	}
}

// Success writes a 200 API.ai status envelope, merged with extra fields.
func Success(w http.ResponseWriter, extra map[string]any) {
	body := StatusBody(http.StatusOK, "success", "")
	for k, v := range extra {
		body[k] = v
	}
	JSON(w, http.StatusOK, body)
}

// Error writes an API.ai error envelope with a matching HTTP status.
func Error(w http.ResponseWriter, status int, errorType, details string) {
	JSON(w, status, StatusBody(status, errorType, details))
}
