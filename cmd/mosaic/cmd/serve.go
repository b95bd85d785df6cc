package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mosaictv/mosaic/internal/broadcast"
	"github.com/mosaictv/mosaic/internal/catalog"
	"github.com/mosaictv/mosaic/internal/compositor"
	"github.com/mosaictv/mosaic/internal/ffmpeg"
	internalhttp "github.com/mosaictv/mosaic/internal/http"
	"github.com/mosaictv/mosaic/internal/http/handlers"
	"github.com/mosaictv/mosaic/internal/httpclient"
	"github.com/mosaictv/mosaic/internal/observability"
	"github.com/mosaictv/mosaic/internal/supervisor"
	"github.com/mosaictv/mosaic/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mosaic server",
	Long: `Start the mosaic HTTP server.

The server provides:
- REST API for layouts, channels, and audio control
- The composed MPEG-TS broadcast at /stream
- Health check endpoint and OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8000, "Port to listen on")
	serveCmd.Flags().String("m3u", "", "M3U playlist URL or file path")
	serveCmd.Flags().String("encoder", "", "Encoder preference (auto, nvenc, qsv, vaapi, cpu)")
	serveCmd.Flags().String("ffmpeg", "", "Path to the ffmpeg binary")
}

// applyServeFlags overrides configuration with flags the user set
// explicitly.
func applyServeFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("m3u") {
		cfg.Source.URL, _ = flags.GetString("m3u")
	}
	if flags.Changed("encoder") {
		cfg.Encoder.Preference, _ = flags.GetString("encoder")
	}
	if flags.Changed("ffmpeg") {
		cfg.Encoder.BinaryPath, _ = flags.GetString("ffmpeg")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	applyServeFlags(cmd)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userAgent := cfg.Source.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent()
	}

	clientCfg := httpclient.DefaultConfig()
	clientCfg.UserAgent = userAgent
	clientCfg.DefaultHeaders = cfg.Source.Headers
	clientCfg.Logger = observability.WithComponent(logger, "httpclient")
	client := httpclient.New(clientCfg)

	cat := catalog.New(cfg.Source.URL, cfg.Source.ServiceName,
		catalog.WithHTTPClient(client),
		catalog.WithLogger(observability.WithComponent(logger, "catalog")),
	)
	if err := cat.Load(ctx); err != nil {
		// keep serving: the refresh endpoint can retry later
		logger.Warn("initial catalog load failed",
			slog.String("source", cfg.Source.URL),
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("catalog loaded", slog.Int("channels", cat.Count()))
	}

	binary, err := ffmpeg.FindBinary(cfg.Encoder.BinaryPath)
	if err != nil {
		return fmt.Errorf("locating ffmpeg: %w", err)
	}

	prober := ffmpeg.NewProber(binary, cfg.Encoder.ProbeTimeout,
		observability.WithComponent(logger, "probe"))
	profile, err := prober.Probe(ctx, cfg.Encoder.Preference)
	if err != nil {
		return fmt.Errorf("selecting encoder: %w", err)
	}
	logger.Info("encoder selected",
		slog.String("profile", profile.Name),
		slog.String("codec", profile.Codec),
	)

	compiler := compositor.New(profile, userAgent).WithHeaders(cfg.Source.Headers)

	hub := broadcast.NewHub(cfg.Stream.ChunkSize, cfg.Stream.ViewerQueueDepth,
		observability.WithComponent(logger, "broadcast"))

	sup := supervisor.New(supervisor.Config{
		Binary:           binary,
		IdleTimeout:      cfg.Stream.IdleTimeout,
		MaxStreamSize:    cfg.Stream.MaxStreamSize,
		WatchdogInterval: cfg.Stream.WatchdogInterval,
	}, compiler, cat, hub, observability.WithComponent(logger, "supervisor"))
	go sup.RunWatchdog(ctx)
	defer sup.Stop()

	server := internalhttp.NewServer(internalhttp.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
	}, observability.WithComponent(logger, "http"), version.Short())

	api := server.API()
	channelHandler := handlers.NewChannelHandler(cat, client)
	channelHandler.Register(api)
	channelHandler.RegisterRoutes(server.Router())
	handlers.NewLayoutHandler(sup).Register(api)
	handlers.NewAudioHandler(sup).Register(api)
	handlers.NewControlHandler(sup, cfg.Encoder.Preference).Register(api)
	handlers.NewHealthHandler(version.Short(), sup).Register(api)
	handlers.NewStreamHandler(sup, hub, cfg.Stream.StartupDeadline,
		observability.WithComponent(logger, "stream")).RegisterRoutes(server.Router())

	return server.ListenAndServe(ctx)
}
