package app

import (
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/licenseshop/internal/config"
	"github.com/licenseshop/internal/logger"

	"go.uber.org/zap"
)

// 启动模式：all 同时运行接口与后台任务；worker 只运行轮询任务与对账
const (
	ModeAll    = "all"
	ModeAPI    = "api"
	ModeWorker = "worker"
)

const defaultShutdownTimeout = 15 * time.Second

// Options 应用启动选项
type Options struct {
	Config          *config.Config
	Logger          *zap.SugaredLogger
	Signals         []os.Signal
	ShutdownTimeout time.Duration
	Mode            string
}

// ParseMode 归一化启动模式，未知模式返回 false
func ParseMode(raw string) (string, bool) {
	mode := strings.ToLower(strings.TrimSpace(raw))
	switch mode {
	case "":
		return ModeAll, true
	case ModeAll, ModeAPI, ModeWorker:
		return mode, true
	default:
		return mode, false
	}
}

func normalizeOptions(opts Options) Options {
	if opts.Logger == nil {
		opts.Logger = logger.S()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	if len(opts.Signals) == 0 {
		opts.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	if mode, ok := ParseMode(opts.Mode); ok {
		opts.Mode = mode
	}
	return opts
}
