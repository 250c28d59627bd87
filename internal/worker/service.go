package worker

import (
	"context"
	"errors"
	"time"

	"github.com/licenseshop/internal/config"
	"github.com/licenseshop/internal/logger"
	"github.com/licenseshop/internal/queue"

	"github.com/hibiken/asynq"
)

const workerShutdownTimeout = 8 * time.Second

// Service asynq 消费者服务，处理轮询、邮件与对账任务
type Service struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	serverCfg.Logger = logger.S().Named("asynq")
	serverCfg.ShutdownTimeout = workerShutdownTimeout
	serverCfg.ErrorHandler = asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		logger.Warnw("worker_task_failed",
			"type", task.Type(),
			"retried", retried,
			"max_retry", maxRetry,
			"error", err,
		)
	})

	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{server: asynq.NewServer(opt, serverCfg), mux: mux}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	return "worker"
}

// Start 启动消费者并阻塞到 ctx 结束；信号由 app.Runner 统一处理
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// Stop 等待进行中的任务结束后关闭
func (s *Service) Stop(context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	s.server.Shutdown()
	return nil
}
