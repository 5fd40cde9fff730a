package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lexiclash/server/internal/v1/ai"
	"github.com/lexiclash/server/internal/v1/board"
	"github.com/lexiclash/server/internal/v1/config"
	"github.com/lexiclash/server/internal/v1/dictionary"
	"github.com/lexiclash/server/internal/v1/dispatch"
	"github.com/lexiclash/server/internal/v1/game"
	"github.com/lexiclash/server/internal/v1/health"
	"github.com/lexiclash/server/internal/v1/logging"
	"github.com/lexiclash/server/internal/v1/metrics"
	"github.com/lexiclash/server/internal/v1/persist"
	"github.com/lexiclash/server/internal/v1/ratelimit"
	"github.com/lexiclash/server/internal/v1/registry"
	"github.com/lexiclash/server/internal/v1/round"
	"github.com/lexiclash/server/internal/v1/tournament"
	"github.com/lexiclash/server/internal/v1/tracing"
	"github.com/lexiclash/server/internal/v1/transport"
	"github.com/lexiclash/server/internal/v1/types"
)

func main() {
	// Load .env file for local development. Try multiple paths to handle
	// different ways of running the app.
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
	ctx := context.Background()

	if cfg.DevelopmentMode {
		logging.Info(ctx, "Running in DEVELOPMENT MODE")
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// --- Tracing (optional) ---
	if collectorAddr := os.Getenv("OTEL_COLLECTOR_ADDR"); collectorAddr != "" {
		tp, err := tracing.InitTracer(ctx, "lexiclash-core", collectorAddr)
		if err != nil {
			logging.Error(ctx, "Failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(shutdownCtx)
			}()
		}
	}

	// --- Persistence mirror ---
	// A failed connection degrades to single-instance mode rather than
	// refusing to boot.
	mirrorOpts := persist.Options{
		Prefix:         cfg.RedisPrefix,
		GameTTL:        cfg.GameTTL,
		TournamentTTL:  cfg.TournamentTTL,
		LeaderboardTTL: cfg.LeaderboardTTL,
	}
	addr := ""
	if cfg.RedisEnabled {
		addr = cfg.RedisAddr
	}
	mirror, err := persist.NewMirror(addr, cfg.RedisPassword, mirrorOpts)
	if err != nil {
		logging.Error(ctx, "Failed to connect to Redis, running in single-instance mode", zap.Error(err))
		mirror, _ = persist.NewMirror("", "", mirrorOpts)
	}

	// --- Core collaborators ---
	// The dispatcher is wired into the store's removal hook after both
	// exist; the indirection covers the construction-order cycle.
	var disp *dispatch.Dispatcher
	store := game.NewStore(func(code types.RoomCode, r *game.Room) {
		if disp != nil {
			disp.RoomSwept(code, r)
		}
	})
	reg := registry.New()
	rounds := round.NewCoordinator(cfg.TimeUpdateInterval)
	pool := board.NewPool(runtime.NumCPU())
	dict := dictionary.NewOracle()
	tournaments := tournament.NewController(mirror)

	disp = dispatch.New(dispatch.Deps{
		Config:      cfg,
		Store:       store,
		Registry:    reg,
		Mirror:      mirror,
		Rounds:      rounds,
		Pool:        pool,
		Dictionary:  dict,
		AI:          ai.NewClient(cfg.AIOracleURL),
		Tournaments: tournaments,
	})

	repopulateRooms(ctx, mirror, store, disp)

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	store.StartSweeper(bgCtx)
	disp.StartPresenceMonitor(bgCtx)
	go monitorSchedulerLag(bgCtx, cfg.EventLoopMonitorInterval)

	// --- Rate limiting ---
	rl, err := ratelimit.NewRateLimiter(cfg, mirror.Client())
	if err != nil {
		logging.Fatal(ctx, "Failed to build rate limiter", zap.Error(err))
	}

	// --- HTTP surface ---
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	router.Use(cors.New(corsConfig))
	router.Use(gin.Recovery())

	wsHandler := transport.NewHandler(cfg, disp, rl)
	router.GET("/ws", wsHandler.ServeWs)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	healthHandler := health.NewHandler(mirror, store)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)
	router.GET("/health/scaling", healthHandler.Scaling)
	router.GET("/metrics/rooms", healthHandler.RoomMetricsHandler)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "API server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "Failed to run server", zap.Error(err))
			_ = syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	disp.Shutdown(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "Server forced to shutdown", zap.Error(err))
	}

	bgCancel()
	store.StopSweeper()
	pool.Close()

	if err := mirror.Close(); err != nil {
		logging.Error(ctx, "Failed to close Redis connection", zap.Error(err))
	}

	logging.Info(ctx, "Server exiting")
}

// repopulateRooms rebuilds the local room store from the mirror after a
// restart so reconnecting clients find their games. Rooms persisted
// mid-round get their countdown resumed, or finalized when the deadline
// already passed.
func repopulateRooms(ctx context.Context, mirror *persist.Mirror, store *game.Store, disp *dispatch.Dispatcher) {
	if !mirror.Enabled() {
		return
	}
	codes, err := mirror.ListRoomCodes(ctx)
	if err != nil {
		logging.Warn(ctx, "Could not list persisted rooms", zap.Error(err))
		return
	}
	restored := 0
	for _, code := range codes {
		snap, err := mirror.LoadRoom(ctx, code)
		if err != nil || snap == nil {
			continue
		}
		store.Replace(game.FromSnapshot(snap))
		disp.ResumeRound(ctx, code)
		restored++
	}
	if restored > 0 {
		logging.Info(ctx, "Restored rooms from persistence", zap.Int("count", restored))
	}
}

// monitorSchedulerLag measures timer wakeup drift as a stand-in for
// runtime scheduling pressure and exports it as a gauge.
func monitorSchedulerLag(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		scheduled := time.Now().Add(interval)
		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return
		case woke := <-timer.C:
			lag := woke.Sub(scheduled)
			if lag < 0 {
				lag = 0
			}
			metrics.SchedulerLag.Set(lag.Seconds())
		}
	}
}
