package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Domenick1991/eventbooking/api"
	"github.com/Domenick1991/eventbooking/config"
	"github.com/Domenick1991/eventbooking/internal/bootstrap"
	"github.com/Domenick1991/eventbooking/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
)

func main() {
	cfgPath := pflag.StringP("config", "c", "", "path to the yaml config (defaults to $CONFIG_PATH, then config.yaml)")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath(*cfgPath))
	if err != nil {
		logger.Fatal("load config", "error", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	if !strings.EqualFold(cfg.Log.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewApp(ctx, cfg)
	if err != nil {
		logger.Fatal("init app", "error", err)
	}
	defer app.Close()

	router := api.NewRouter(cfg.HTTP, app.Bookings, app.Events)
	if err := bootstrap.Run(ctx, cfg, router, app.Registry, app.Checks...); err != nil {
		logger.Get().Error("server error", "error", err)
		app.Close()
		os.Exit(1)
	}
}

func configPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return "config.yaml"
}
