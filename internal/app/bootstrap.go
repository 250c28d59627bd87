package app

import (
	"context"
	"errors"
	"time"

	"github.com/licenseshop/internal/config"
	"github.com/licenseshop/internal/logger"
	"github.com/licenseshop/internal/provider"
	"github.com/licenseshop/internal/router"
	"github.com/licenseshop/internal/worker"
)

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, mode string) (*Runner, *provider.Container, error) {
	if cfg == nil {
		return nil, nil, errors.New("config is nil")
	}
	mode, ok := ParseMode(mode)
	if !ok {
		return nil, nil, errors.New("unknown mode: " + mode)
	}

	container, err := provider.NewContainer(cfg)
	if err != nil {
		return nil, nil, err
	}

	var services []Service

	// 初始化 HTTP 服务
	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		services = append(services, NewHTTPService(addr, engine))
	}

	// 初始化 Worker 服务
	if mode == ModeAll || mode == ModeWorker {
		if container.QueueClient.Enabled() {
			workerService, err := worker.NewService(&cfg.Queue, worker.NewConsumer(container))
			if err != nil {
				container.Close(context.Background())
				return nil, nil, err
			}
			services = append(services, workerService)
		} else if mode == ModeWorker {
			logger.Warnw("app_worker_queue_disabled")
		}

		if minutes := cfg.Checkout.ReconcileIntervalMinutes; minutes > 0 {
			loop, err := worker.NewReconcileLoop(container.OrderAdminService, time.Duration(minutes)*time.Minute,
				worker.WithDispatcher(container.QueueClient))
			if err != nil {
				container.Close(context.Background())
				return nil, nil, err
			}
			services = append(services, loop)
		}
	}

	if len(services) == 0 {
		container.Close(context.Background())
		return nil, nil, errors.New("no services initialized (check mode and config)")
	}

	return NewRunner(services...), container, nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, container, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
		defer cancel()
		container.Close(ctx)
	}()

	addr := opts.Config.Server.Host + ":" + opts.Config.Server.Port
	opts.Logger.Infow("app_start", "addr", addr, "mode", opts.Mode, "services", runner.Names())
	return RunWithOptions(runner, opts)
}
