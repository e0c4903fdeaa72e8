package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ad/go-workshop-progress/internal/config"
	"github.com/ad/go-workshop-progress/internal/db"
	"github.com/ad/go-workshop-progress/internal/handlers"
	"github.com/ad/go-workshop-progress/internal/services"
	"github.com/go-telegram/bot"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.UsesDefaultJWTKey() {
		logger.Warn("JWT_SECRET_KEY is not set, using the default key")
	}

	sqlDB, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.String("path", cfg.DBPath), zap.Error(err))
	}
	defer sqlDB.Close()

	dbQueue := db.NewDBQueue(sqlDB, logger)
	defer dbQueue.Close()

	userRepo := db.NewUserRepository(dbQueue)
	progressRepo := db.NewProgressRepository(dbQueue)
	assessmentRepo := db.NewAssessmentRepository(dbQueue)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var errorManager *services.ErrorManager
	if cfg.AdminNotificationsEnabled() {
		b, err := connectBot(ctx, cfg.BotToken, logger)
		if err != nil {
			logger.Warn("admin notifications disabled", zap.Error(err))
		} else {
			errorManager = services.NewErrorManager(b, cfg.AdminChatID)
		}
	}

	repairer := services.NewProgressRepairer(progressRepo, errorManager, logger)
	scheduler := cron.New()
	if _, err := repairer.Schedule(scheduler, cfg.RepairSchedule); err != nil {
		logger.Fatal("invalid REPAIR_SCHEDULE", zap.String("schedule", cfg.RepairSchedule), zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	app := handlers.NewApp(
		handlers.NewProgressHandler(userRepo, progressRepo, assessmentRepo, logger),
		handlers.AppOptions{
			JWTKey:       cfg.JWTKey,
			ErrorManager: errorManager,
			AccessLog:    os.Stdout,
			Logger:       logger,
		},
	)

	go func() {
		<-ctx.Done()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("server started",
		zap.String("port", cfg.Port),
		zap.String("db", cfg.DBPath),
		zap.String("repair_schedule", cfg.RepairSchedule),
		zap.Bool("admin_notifications", errorManager != nil))

	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func connectBot(ctx context.Context, token string, logger *zap.Logger) (*bot.Bot, error) {
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
	}

	b, err := bot.New(token, bot.WithHTTPClient(15*time.Second, httpClient), bot.WithSkipGetMe())
	if err != nil {
		return nil, err
	}

	for i := 0; i < 3; i++ {
		getMeCtx, getMeCancel := context.WithTimeout(ctx, 10*time.Second)
		_, err = b.GetMe(getMeCtx)
		getMeCancel()
		if err == nil {
			return b, nil
		}
		logger.Warn("failed to reach Telegram API", zap.Int("attempt", i+1), zap.Error(err))
		if i < 2 {
			time.Sleep(2 * time.Second)
		}
	}
	return nil, err
}
