package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tick-monitor/api"
	"tick-monitor/cache"
	"tick-monitor/config"
	"tick-monitor/monitoring"
	"tick-monitor/schedule"
	"tick-monitor/store"
)

func main() {
	// Настройки
	cfg := config.Load("")
	monitoring.Setup(cfg.Logging.Level, cfg.Logging.File, cfg.Logging.MaxBytes, cfg.Logging.BackupCount, cfg.LoggingEnabled())

	// Инициализация базы данных
	st, err := store.Connect(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Ошибка подключения к базе данных: %v", err)
	}
	defer st.Close()

	if err := st.InitSchema(context.Background()); err != nil {
		log.Fatalf("Ошибка инициализации схемы БД: %v", err)
	}

	// Кэш ответов API
	responseCache := cache.New(cfg.Redis, cfg.RedisEnabled())
	defer responseCache.Close()

	// Планировщик обновления данных
	scheduler := schedule.New(cfg, st, responseCache)
	scheduler.Start()

	// HTTP-сервер API
	handlers := api.New(cfg, st, responseCache, scheduler)
	server := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: handlers.Routes(),
	}

	go func() {
		log.Printf("HTTP-сервер запущен на %s", cfg.ListenAddr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Ошибка запуска сервера: %v", err)
		}
	}()

	// Ожидание сигнала завершения
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Получен сигнал завершения, закрываем приложение...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Ошибка остановки HTTP-сервера: %v", err)
	}
	scheduler.Stop()
	log.Println("Приложение остановлено")
}
