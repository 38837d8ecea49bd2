package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"hotel-rag-go/internal/handler"
	"hotel-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var withArchive bool
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*cfgPath, withArchive)
		},
	}
	serve.Flags().BoolVar(&withArchive, "archive", false, "also run the Kafka archive consumer in this process")
	return serve
}

func runServe(cfgPath string, withArchive bool) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if withArchive {
		if !cfg.Kafka.Enabled {
			return errors.New("--archive 需要启用 kafka")
		}
		consumer, err := a.newConsumer(ctx)
		if err != nil {
			return err
		}
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Errorf("Kafka 消费者退出: %v", err)
			}
		}()
	}

	gin.SetMode(cfg.Server.Mode)
	deps := handler.RouterDeps{
		Chat:          a.chat,
		Retriever:     a.retriever,
		History:       a.history,
		Conversations: a.conversations,
		JWT:           a.jwt,
		Metrics:       a.metrics,
		MaxImageBytes: cfg.Chat.MaxImageBytes,
	}
	if a.minio != nil {
		deps.Presigner = a.minio
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: handler.NewRouter(deps),
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待中断信号以实现优雅停机
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("HTTP 服务监听失败: %w", err)
	}
	log.Info("接收到停机信号，正在关闭服务...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP 服务器关闭失败: %w", err)
	}
	log.Info("服务已优雅关闭")
	return nil
}
