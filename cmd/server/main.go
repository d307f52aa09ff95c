package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/studentmarket-backend/internal/config"
	"github.com/ignatzorin/studentmarket-backend/internal/db"
	"github.com/ignatzorin/studentmarket-backend/internal/domain/policy"
	httpHandlers "github.com/ignatzorin/studentmarket-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/studentmarket-backend/internal/http/router"
	"github.com/ignatzorin/studentmarket-backend/internal/infrastructure/lock"
	"github.com/ignatzorin/studentmarket-backend/internal/infrastructure/payment"
	"github.com/ignatzorin/studentmarket-backend/internal/logger"
	"github.com/ignatzorin/studentmarket-backend/internal/repository"
	"github.com/ignatzorin/studentmarket-backend/internal/service"
	"github.com/ignatzorin/studentmarket-backend/internal/storage"
	"github.com/ignatzorin/studentmarket-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	logger.Init(cfg.LogLevel)
	if cfg.Env == "development" {
		logger.SetTextFormatter()
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		logger.Log.Fatalf("main: ошибка миграций: %v", err)
	}

	files, err := storage.NewFileStorage(cfg.MediaStoragePath, cfg.MaxUploadSizeMB)
	if err != nil {
		logger.Log.Fatalf("main: не удалось подготовить файловое хранилище: %v", err)
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)

	// Репозитории.
	store := service.NewSQLStore(repository.NewStore(dbConn))
	notificationRepo := repository.NewNotificationRepository(dbConn)
	settingsRepo := repository.NewSettingsRepository(dbConn)

	// Вебсокеты.
	hub := ws.NewHub(ctx)
	go hub.Run()

	// Сервисы.
	notifications := service.NewNotificationService(notificationRepo, hub)
	cache := service.NewCacheService(ctx)
	settings := service.NewSettingsService(store, settingsRepo, cache, cfg.Marketplace.DefaultCommissionRate, cfg.Marketplace.SettingsCacheTTL)

	payments := service.NewPaymentService(store, newGateway(cfg), notifications)
	if rdb := connectRedis(ctx, cfg); rdb != nil {
		defer rdb.Close()
		payments.WithLocker(lock.NewRedisLocker(rdb, cfg.Payments.WebhookLockTTL))
	}

	orders := service.NewOrderService(store, payments, settings, notifications, cfg.Marketplace.DefaultMaxRevisions)
	disputes := service.NewDisputeService(store, payments, notifications)
	violations := service.NewViolationService(store, notifications, policy.Escalation{
		TempSuspensionAfter: cfg.Penalty.TempSuspensionAfter,
		BanAfter:            cfg.Penalty.BanAfter,
		TempSuspensionDays:  cfg.Penalty.TempSuspensionDays,
	})
	listings := service.NewListingService(store)
	messages := service.NewMessageService(store, notifications)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, httpRouter.Handlers{
		Health:        httpHandlers.NewHealthHandler(dbConn),
		Orders:        httpHandlers.NewOrderHandler(orders),
		Payments:      httpHandlers.NewPaymentHandler(payments),
		Webhooks:      httpHandlers.NewWebhookHandler(payments, cfg.Payments.WebhookSecret, cfg.Payments.MidtransServerKey),
		Disputes:      httpHandlers.NewDisputeHandler(disputes),
		Moderation:    httpHandlers.NewModerationHandler(violations),
		Listings:      httpHandlers.NewListingHandler(listings),
		Messages:      httpHandlers.NewMessageHandler(messages),
		Notifications: httpHandlers.NewNotificationHandler(notifications),
		Settings:      httpHandlers.NewSettingsHandler(settings),
		Uploads:       httpHandlers.NewUploadHandler(files),
		WS:            httpHandlers.NewWSHandler(hub, tokenManager, cfg.AllowedOrigins),
	}, tokenManager)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.Errorf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	logger.Log.WithFields(logrus.Fields{
		"port": cfg.HTTPPort,
		"env":  cfg.Env,
	}).Info("main: HTTP сервер запущен")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// newGateway выбирает Midtrans, если задан ключ, иначе офлайн-шлюз для разработки.
func newGateway(cfg *config.Config) service.PaymentGateway {
	if cfg.Payments.MidtransServerKey == "" {
		logger.Log.Warn("main: MIDTRANS_SERVER_KEY не задан, используется офлайн-шлюз")
		return payment.NewOfflineGateway("http://localhost:" + cfg.HTTPPort)
	}
	return payment.NewMidtransGateway(payment.MidtransConfig{
		ServerKey:  cfg.Payments.MidtransServerKey,
		IrisKey:    cfg.Payments.MidtransIrisKey,
		Production: cfg.Payments.MidtransProduction,
	})
}

// connectRedis возвращает nil, если Redis не настроен или недоступен.
// Тогда вебхуки защищает только уникальный индекс в базе.
func connectRedis(ctx context.Context, cfg *config.Config) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}
	rdb, err := lock.Connect(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{
			"address": cfg.Redis.Address,
			"error":   err.Error(),
		}).Warn("main: Redis недоступен, блокировка вебхуков отключена")
		return nil
	}
	return rdb
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		logger.Log.Errorf("main: ошибка закрытия базы: %v", err)
	}
}
