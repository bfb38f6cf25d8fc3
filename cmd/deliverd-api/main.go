// README: Entry point; loads config, wires the realtime core, starts the HTTP/websocket server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deliverd/internal/config"
	httptransport "deliverd/internal/http"
	"deliverd/internal/http/handlers"
	"deliverd/internal/infra"
	"deliverd/internal/modules/dispatch"
	"deliverd/internal/modules/order"
	"deliverd/internal/modules/presence"
	"deliverd/internal/modules/registry"
	"deliverd/internal/modules/rooms"
	"deliverd/internal/ws"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Error("database connect failed", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	reg := registry.New(log)

	var backend rooms.PubSubBackend = rooms.NewMemoryPubSub()
	var geo *presence.Store
	if cfg.Redis.Addr != "" {
		redisClient := infra.NewRedis(cfg.Redis.Addr)
		defer redisClient.Close()
		backend = rooms.NewRedisPubSub(redisClient, log)
		geo = presence.NewStore(redisClient)
		log.Info("redis backend enabled", "addr", cfg.Redis.Addr)
	}
	defer backend.Close()

	router := rooms.NewRouter(reg, backend, log)
	reg.OnUnregister(router.DropSession)

	store := order.NewPGStore(dbPool)
	machine := order.NewMachine(store)
	dispatcher := dispatch.NewService(machine, store, router, reg, log)
	presenceSvc := presence.NewService(router, geo, cfg.Presence.MinInterval, log)
	hub := ws.NewHub(reg, router, dispatcher, presenceSvc, log)

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Orders:   handlers.NewOrderHandler(dispatcher, store, cfg.Order.MinimumAmount),
		Payments: handlers.NewPaymentHandler(dispatcher),
		Riders:   handlers.NewRiderHandler(dispatcher, presenceSvc),
		Admin:    handlers.NewAdminHandler(dispatcher, reg),
		Hub:      hub,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("deliverd api listening", "addr", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
