package main

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/teamchat/teamchat/internal/chat"
	"github.com/teamchat/teamchat/internal/config"
	"github.com/teamchat/teamchat/internal/logger"
	"github.com/teamchat/teamchat/internal/transport/ws"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	channels, err := cfg.Channels()
	if err != nil {
		log.Fatal("load channels", zap.Error(err))
	}
	for _, ch := range channels {
		log.Info("channel configured", zap.String("id", ch.ID), zap.String("name", ch.Name))
	}

	hub := ws.NewHub(log)
	registry := chat.NewRegistry(channels, hub, log)
	hub.SetRegistry(registry)
	go hub.Run()

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", ws.ServeWS(hub))

	handler := cors.AllowAll().Handler(r)

	addr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Info("server listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
