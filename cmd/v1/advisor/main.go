package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/sumedhnvda/GM-uni/internal/v1/backend"
	"github.com/sumedhnvda/GM-uni/internal/v1/call"
	"github.com/sumedhnvda/GM-uni/internal/v1/chat"
	"github.com/sumedhnvda/GM-uni/internal/v1/config"
	"github.com/sumedhnvda/GM-uni/internal/v1/health"
	"github.com/sumedhnvda/GM-uni/internal/v1/identity"
	"github.com/sumedhnvda/GM-uni/internal/v1/logging"
	"github.com/sumedhnvda/GM-uni/internal/v1/media"
	"github.com/sumedhnvda/GM-uni/internal/v1/playback"
	"github.com/sumedhnvda/GM-uni/internal/v1/tracing"
)

func main() {
	mode := flag.String("mode", "chat", "session mode: chat or call")
	flag.Parse()

	// Load .env file for local development.
	// Try multiple paths to handle different ways of running the app
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}
	if !envLoaded {
		slog.Warn("No .env file found in any expected location, relying on environment variables")
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if cfg.DevelopmentMode {
		slog.Info("Running in DEVELOPMENT MODE")
	}

	// Warn early when the token is about to lapse; every REST call and both
	// sockets ride on it.
	if claims, err := identity.ParseToken(cfg.AuthToken); err != nil {
		slog.Warn("Auth token is not a parseable JWT, continuing anyway", "error", err)
	} else if claims.ExpiresWithin(5 * time.Minute) {
		slog.Warn("Auth token expires soon; sessions may drop mid-visit")
	}

	// --- Tracing (optional) ---
	if cfg.OtelCollectorAddr != "" {
		tp, err := tracing.InitTracer(context.Background(), "advisor-client", cfg.OtelCollectorAddr, cfg.OtelInsecureSkipVerify)
		if err != nil {
			slog.Error("Failed to initialize tracing, continuing without it", "error", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(ctx)
			}()
			slog.Info("✅ Tracing initialized", "collector", cfg.OtelCollectorAddr)
		}
	}

	api, err := backend.NewClient(cfg.APIBaseURL, cfg.AuthToken)
	if err != nil {
		slog.Error("Failed to create API client", "error", err)
		os.Exit(1)
	}

	// --- Ops Server (metrics + health) ---
	if !cfg.DevelopmentMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("advisor-client"))

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins != "" {
		corsConfig.AllowOrigins = []string{cfg.AllowedOrigins}
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	healthHandler := health.NewHandler(api)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	srv := &http.Server{
		Addr:    ":" + cfg.OpsPort,
		Handler: router,
	}
	go func() {
		slog.Info("Ops server starting", "port", cfg.OpsPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to run ops server", "error", err)
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	// --- Session ---
	var teardown func()
	switch *mode {
	case "chat":
		sess := chat.NewSession(api, nil)
		if err := sess.Join(context.Background()); err != nil {
			slog.Error("Failed to join community room", "error", err)
			os.Exit(1)
		}
		room := sess.Room()
		slog.Info("Joined community room", "room", room.DisplayName, "members", room.MemberCount)
		teardown = sess.Leave

	case "call":
		facing := media.Facing(cfg.CameraFacing)
		open := func(ctx context.Context) (*media.MediaStream, error) {
			mic, err := media.OpenMicrophone(cfg.CaptureSampleRate)
			if err != nil {
				return nil, err
			}
			cam, err := media.OpenCamera(ctx, facing)
			if err != nil {
				_ = mic.Close()
				return nil, err
			}
			return media.NewMediaStream(mic, cam), nil
		}
		newSink := func() (playback.Sink, error) {
			return playback.NewFFplaySink(cfg.PlaybackSampleRate)
		}
		camera := media.NewCameraController(media.OpenCamera, media.SystemEnumerator{}, facing)

		ctrl := call.NewController(api, open, newSink, camera, func(s call.State) {
			slog.Info("Call state changed", "state", string(s))
		})
		if err := ctrl.Start(context.Background()); err != nil {
			slog.Error("Failed to start live call", "error", err)
			os.Exit(1)
		}
		teardown = func() {
			ctrl.End()
			waitForCallEnd(ctrl)
		}

	default:
		slog.Error("Unknown mode, expected chat or call", "mode", *mode)
		os.Exit(1)
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down...")

	// The session teardown must finish before exit so capture devices are
	// released and the far side sees a clean close.
	teardown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Ops server forced to shutdown", "error", err)
	}

	_ = logging.GetLogger().Sync()
	slog.Info("Exiting")
}

// waitForCallEnd blocks until the controller settles or the end fallback
// window has clearly elapsed.
func waitForCallEnd(ctrl *call.Controller) {
	deadline := time.Now().Add(8 * time.Second)
	for time.Now().Before(deadline) {
		switch ctrl.State() {
		case call.StateEnded, call.StateError, call.StateIdle:
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}
