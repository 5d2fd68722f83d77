// Package main serves the stock dashboard over the collected prices and
// sends the threshold alert emails.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockwatch/internal/alert"
	"stockwatch/internal/dashboard"
	"stockwatch/internal/store"
	"stockwatch/internal/utils"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML config (default $CONFIG_PATH or "+utils.DefaultConfigPath+")")
	addr := flag.String("addr", "", "Listen address (default dashboard.addr from config)")
	flag.Parse()

	config, err := utils.LoadConfig(utils.ConfigPath(*configPath))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := utils.NewLogger(config.Log, "dashboard")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, config.Database.URL, store.WithMigrate(config.Database.Migrate))
	if err != nil {
		logger.Fatal("Failed to open database: %v", err)
	}
	defer st.Close()

	rules := alert.RulesFromConfig(config.Alerts)
	if len(rules) > 0 && config.Alerts.SMTP.Username == "" {
		logger.Warn("Alert rules are configured but SMTP_USERNAME is empty; alert emails will fail")
	}
	monitor, err := alert.NewMonitor(alert.NewSMTPNotifier(config.Alerts.SMTP), logger, rules...)
	if err != nil {
		logger.Fatal("Invalid alert rules: %v", err)
	}

	reader := dashboard.NewCachedReader(st, time.Duration(config.Dashboard.CacheTTL)*time.Second)
	srv := dashboard.New(reader, monitor, logger, config.Dashboard)
	go srv.RunAlerts(ctx)

	listen := config.Dashboard.Addr
	if *addr != "" {
		listen = *addr
	}
	logger.Info("Starting dashboard on %s", listen)
	if err := srv.Start(ctx, listen); err != nil {
		logger.Fatal("Dashboard failed: %v", err)
	}
	logger.Info("Dashboard stopped")
}
