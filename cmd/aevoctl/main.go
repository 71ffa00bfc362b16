// Command aevoctl streams Aevo market and account updates as JSON lines.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"

	"github.com/coachpo/aevo/errs"
	"github.com/coachpo/aevo/internal/config"
	"github.com/coachpo/aevo/internal/logging"
	"github.com/coachpo/aevo/lib/telemetry"
	"github.com/coachpo/aevo/pkg/aevo"
	"github.com/coachpo/aevo/pkg/env"
	"github.com/coachpo/aevo/pkg/wire"
)

const (
	streamShutdownTimeout    = 5 * time.Second
	lifecycleShutdownTimeout = 5 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
	oneShotTimeout           = 20 * time.Second
)

type cliFlags struct {
	configPath string
	envFile    string
	channels   string
	index      string
	snapshot   bool
}

func main() {
	flags := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	if err := run(ctx, cancel, flags, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "aevoctl: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for configuration and credential errors, 1 otherwise.
func exitCode(err error) int {
	if errs.CodeOf(err) == errs.CodeConfig {
		return 2
	}
	return 1
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", fmt.Sprintf("Path to configuration file (default: %s)", config.DefaultPath))
	flag.StringVar(&f.envFile, "env-file", ".env", "Optional dotenv file with AEVO_* credentials")
	flag.StringVar(&f.channels, "channels", "", "Comma separated channels, overriding stream.channels")
	flag.StringVar(&f.index, "index", "", "Print the index price of an asset and exit unless channels are set")
	flag.BoolVar(&f.snapshot, "snapshot", false, "Print the account snapshot before streaming")
	flag.Parse()
	return f
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func run(ctx context.Context, cancel context.CancelFunc, flags cliFlags, out io.Writer) error {
	if err := config.LoadDotEnv(flags.envFile); err != nil {
		return err
	}
	cfg, loadedFromFile, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.channels != "" {
		cfg.Stream.Channels = splitChannels(flags.channels)
	}

	base, err := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger := logging.Component(base, "aevoctl")
	if !loadedFromFile {
		logger.Info().Msg("configuration file not found, using defaults")
	}
	logger.Info().Str("environment", cfg.Environment).Int("channels", len(cfg.Stream.Channels)).Msg("configuration initialised")

	network, err := env.Lookup(cfg.Env())
	if err != nil {
		return fmt.Errorf("resolve environment: %w", err)
	}
	providers, shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Settings{
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		Environment:  network.Environment.String(),
		ChainID:      network.Domain.ChainID,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	client, err := aevo.New(credentials(cfg), cfg.Env(), clientOptions(cfg, base, providers)...)
	if err != nil {
		return fmt.Errorf("build client: %w", err)
	}

	if err := runOneShots(ctx, client, flags, out); err != nil {
		return err
	}
	if len(cfg.Stream.Channels) == 0 {
		if flags.index == "" && !flags.snapshot {
			logger.Warn().Msg("no channels configured; nothing to stream")
		}
		shutdownStep(logger, "shutting down telemetry", telemetryShutdownTimeout, shutdownTelemetry)
		return nil
	}

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := client.Subscribe(ctx, cfg.Stream.Channels...); err != nil {
		_ = client.Close()
		return fmt.Errorf("subscribe: %w", err)
	}
	logger.Info().Strs("channels", cfg.Stream.Channels).Msg("streaming started; awaiting shutdown signal")

	inbox := client.NewInbox(cfg.Stream.InboxSize)
	runErr := make(chan error, 1)
	var lifecycle conc.WaitGroup
	lifecycle.Go(func() {
		err := client.Run(ctx, inbox)
		runErr <- err
		if err != nil && !errors.Is(err, context.Canceled) {
			cancel()
		}
	})
	lifecycle.Go(func() {
		printResponses(ctx, inbox, out, logger)
	})

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received, initiating graceful shutdown")

	shutdownStart := time.Now()
	performGracefulShutdown(logger, gracefulShutdownConfig{
		client:    client,
		inbox:     inbox,
		lifecycle: &lifecycle,
		telemetry: shutdownTelemetry,
	})
	logger.Info().Dur("elapsed", time.Since(shutdownStart)).Msg("shutdown completed")

	select {
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stream: %w", err)
		}
	default:
	}
	return nil
}

func credentials(cfg config.Config) aevo.Credentials {
	return aevo.Credentials{
		SigningKey:    cfg.Credentials.SigningKey,
		WalletAddress: cfg.Credentials.WalletAddress,
		APIKey:        cfg.Credentials.APIKey,
		APISecret:     cfg.Credentials.APISecret,
	}
}

func clientOptions(cfg config.Config, logger zerolog.Logger, providers telemetry.Providers) []aevo.Option {
	return []aevo.Option{
		aevo.WithLogger(logger),
		aevo.WithHTTPClient(&http.Client{Timeout: cfg.REST.Timeout}),
		aevo.WithRateLimit(rate.Limit(cfg.REST.RateLimit), cfg.REST.Burst),
		aevo.WithMeterProvider(providers.MeterProvider),
		aevo.WithTracerProvider(providers.TracerProvider),
		aevo.WithReconnectMaxElapsed(cfg.Stream.ReconnectMaxElapsed),
		aevo.WithRESTBaseURL(cfg.Endpoints.REST),
		aevo.WithWSURL(cfg.Endpoints.WS),
	}
}

func runOneShots(ctx context.Context, client *aevo.Client, flags cliFlags, out io.Writer) error {
	if flags.index == "" && !flags.snapshot {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, oneShotTimeout)
	defer cancel()

	enc := json.NewEncoder(out)
	if flags.index != "" {
		index, err := client.REST().GetIndex(ctx, flags.index)
		if err != nil {
			return fmt.Errorf("get index: %w", err)
		}
		if err := enc.Encode(map[string]any{"asset": flags.index, "price": index.Price, "timestamp": index.Timestamp}); err != nil {
			return fmt.Errorf("write index: %w", err)
		}
	}
	if flags.snapshot {
		snap, err := client.REST().Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
	}
	return nil
}

// line is the JSON shape printed for each response.
type line struct {
	Kind    wire.Kind       `json:"kind"`
	Channel string          `json:"channel,omitempty"`
	ID      *uint64         `json:"id,omitempty"`
	Op      wire.Op         `json:"op,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func printResponses(ctx context.Context, inbox *aevo.Inbox, out io.Writer, logger zerolog.Logger) {
	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			return
		case <-inbox.Done():
			return
		case resp, ok := <-inbox.C:
			if !ok {
				return
			}
			if err := enc.Encode(toLine(resp)); err != nil {
				logger.Error().Err(err).Msg("write response")
				return
			}
		}
	}
}

func toLine(resp wire.Response) line {
	return line{
		Kind:    resp.Kind,
		Channel: resp.Channel,
		ID:      resp.ID,
		Op:      resp.Op,
		Error:   resp.Error,
		Data:    resp.Data,
	}
}

func splitChannels(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type gracefulShutdownConfig struct {
	client    *aevo.Client
	inbox     *aevo.Inbox
	lifecycle *conc.WaitGroup
	telemetry func(context.Context) error
}

func shutdownStep(logger zerolog.Logger, name string, timeout time.Duration, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	logger.Info().Msgf("shutdown: %s...", name)
	if err := fn(ctx); err != nil {
		logger.Error().Err(err).Msgf("shutdown: %s failed", name)
		return
	}
	logger.Info().Msgf("shutdown: %s completed", name)
}

func performGracefulShutdown(logger zerolog.Logger, cfg gracefulShutdownConfig) {
	if cfg.client != nil {
		shutdownStep(logger, "closing stream", streamShutdownTimeout, func(context.Context) error {
			if cfg.inbox != nil {
				cfg.inbox.Stop()
			}
			return cfg.client.Close()
		})
	}

	if cfg.lifecycle != nil {
		shutdownStep(logger, "waiting for lifecycle goroutines", lifecycleShutdownTimeout, func(stepCtx context.Context) error {
			done := make(chan struct{})
			go func() {
				cfg.lifecycle.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-stepCtx.Done():
				return fmt.Errorf("timeout waiting for goroutines: %w", stepCtx.Err())
			}
		})
	}

	if cfg.telemetry != nil {
		shutdownStep(logger, "shutting down telemetry", telemetryShutdownTimeout, cfg.telemetry)
	}
}
