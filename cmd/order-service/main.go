package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop-orders/internal/app"
	"github.com/vladislavdragonenkov/shop-orders/internal/version"
)

func main() {
	lookup, err := osEnvLookup()
	if err != nil {
		log.WithError(err).Fatal("не удалось прочитать окружение")
	}
	cfg, warnings, err := loadConfig(lookup)
	if err != nil {
		log.WithError(err).Fatal("не удалось загрузить конфигурацию")
	}

	closeLog, err := app.SetupLogging(cfg)
	if err != nil {
		log.WithError(err).Fatal("не удалось настроить логирование")
	}
	defer func() { _ = closeLog() }()

	for _, w := range warnings {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":        version.String(),
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka":          cfg.KafkaBrokers != "",
	}).Info("запускаем OrderService")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("приложение завершилось с ошибкой")
		stop()
		_ = closeLog()
		os.Exit(1)
	}

	log.Info("OrderService остановлен")
}
