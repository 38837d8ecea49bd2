package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"hotel-rag-go/pkg/log"

	"github.com/spf13/cobra"
)

func archiveCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Consume turn events from Kafka and archive them to MySQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			defer log.Sync()
			if !cfg.Kafka.Enabled || !cfg.Database.MySQL.Enabled {
				return errors.New("archive 需要同时启用 kafka 和 database.mysql")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			consumer, err := a.newConsumer(ctx)
			if err != nil {
				return err
			}
			return consumer.Run(ctx)
		},
	}
}
