/*
Runs the boardirc gateway. Defaults to listening on port 6667 of every
interface.

Join #/g/ to follow a board or #/g/<thread number> to follow one thread.

Example:

	go run . --name irc.example.net --ports 6667,6668 --state-dir ./state
	go run . --config boardirc.yaml
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/awfulava/boardirc"
	"github.com/awfulava/boardirc/fourchan"
	"github.com/awfulava/boardirc/poller"
)

func main() {
	if err := newCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:           "boardirc",
		Short:         "IRC gateway to image boards",
		Example:       fmt.Sprintf("  %s --ports 6667 --state-dir ./state", os.Args[0]),
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	def := boardirc.DefaultConfig()
	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "YAML config file")
	flags.String("name", def.Name, "server name")
	flags.String("listen", def.Listen, "address to bind, empty for every interface")
	flags.IntSlice("ports", nil, "ports to listen on (default 6667, or 6697 with TLS)")
	flags.String("password", "", "connection password")
	flags.String("tls-cert", "", "PEM certificate; enables TLS")
	flags.String("tls-key", "", "PEM key, if not in the certificate file")
	flags.String("motd", "", "message of the day file")
	flags.String("log-dir", "", "directory for the process log and channel transcripts")
	flags.String("state-dir", "", "directory for channel topics and keys")
	flags.Duration("poll-interval", def.PollInterval, "pause between poll cycles")
	flags.String("api-base", def.APIBase, "upstream JSON API")
	flags.String("image-base", def.ImageBase, "upstream image host")
	flags.String("thumb-base", def.ThumbBase, "upstream thumbnail host")
	flags.Float64("requests-per-second", def.RequestsPerSecond, "upstream request rate")
	flags.Int("burst", def.Burst, "upstream request burst")
	flags.Int("queue-size", def.QueueSize, "capacity of the poller queues")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	flags.Bool("debug", false, "log every protocol line")

	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
	v.SetEnvPrefix("BOARDIRC")
	v.AutomaticEnv()

	return cmd
}

// loadConfig merges flags, BOARDIRC_* environment variables and the config
// file, in that order of precedence.
func loadConfig(v *viper.Viper, configFile string) (boardirc.Config, error) {
	cfg := boardirc.DefaultConfig()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg boardirc.Config) (zerolog.Logger, io.Closer) {
	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	var closer io.Closer = nopCloser{}
	if cfg.LogDir != "" {
		file := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "boardirc.log"),
			MaxSize:    100,
			MaxBackups: 3,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, file)
		closer = file
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), closer
}

func run(ctx context.Context, cfg boardirc.Config) error {
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
	}
	log, closer := newLogger(cfg)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client := fourchan.NewClient(cfg.ClientConfig(), log)
	p := poller.New(client, cfg.PollerConfig(), log, reg)
	server, err := boardirc.NewServer(cfg, p, log, reg)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(ctx)
	})
	g.Go(func() error {
		return p.Run(ctx)
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, cfg.MetricsAddr, reg, log)
		})
	}

	log.Info().Str("name", cfg.Name).Ints("ports", cfg.Ports).Str("version", boardirc.Version).Msg("Started")
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		log.Error().Err(err).Msg("Stopped")
	} else {
		log.Info().Msg("Stopped")
	}
	return err
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
