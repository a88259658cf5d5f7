package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/plugwarden/internal/bot"
	"github.com/example/plugwarden/internal/orchestrator"
	"github.com/example/plugwarden/internal/persistence/jsonstore"
	"github.com/example/plugwarden/internal/transport/mqtt"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the enforcement service",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := jsonstore.New(cfg.DataDir, logger)
		if err != nil {
			return err
		}

		channel := mqtt.New(mqtt.Options{
			Broker:   cfg.MQTTBroker,
			Port:     cfg.MQTTPort,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			ClientID: cfg.MQTTClientID,
		}, logger)
		if err := channel.Connect(ctx); err != nil {
			return err
		}
		defer channel.Close()

		manager := orchestrator.New(orchestrator.Settings{
			PowerThreshold:        cfg.PowerThreshold,
			TickInterval:          cfg.TickInterval(),
			DefaultMinutes:        cfg.DefaultDailyMinutes,
			StaleThreshold:        cfg.StaleThreshold(),
			LowBudgetThreshold:    cfg.LowBudgetThreshold,
			ReportInterval:        cfg.ReportInterval(),
			HeadUserID:            cfg.HeadUserID,
			SharedErrorAccounting: cfg.SharedErrorAccounting,
			TelemetryPeriod:       cfg.TelemetryPeriod(),
			Broker:                cfg.MQTTBroker,
			BrokerPort:            cfg.MQTTPort,
		}, orchestrator.Dependencies{
			Users:    store,
			Bookings: store,
			Devices:  store,
			Channel:  channel,
			Logger:   logger,
		})

		front, err := bot.New(cfg, manager, logger)
		if err != nil {
			return err
		}
		manager.SetNotifier(front)

		if err := manager.LoadState(ctx); err != nil {
			return err
		}

		go front.Start(ctx)

		if err := manager.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
