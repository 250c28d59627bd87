package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/licenseshop/internal/app"
	"github.com/licenseshop/internal/config"
	"github.com/licenseshop/internal/logger"

	"github.com/gin-gonic/gin"
)

const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiCyan  = "\033[36m"
)

func main() {
	// 解析命令行参数
	var mode string
	flag.StringVar(&mode, "mode", app.ModeAll, "启动模式: all (默认), api, worker")
	flag.Parse()
	mode, ok := app.ParseMode(mode)
	if !ok {
		fmt.Fprintln(os.Stderr, "unknown mode: "+mode)
		os.Exit(2)
	}

	fmt.Println(ansiCyan + ansiBold + "License Shop API starting (mode=" + mode + ")" + ansiReset)

	// 加载配置
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	defer logger.Sync()
	log := logger.S()

	if err := cfg.Validate(); err != nil {
		log.Fatalw("config_invalid", "error", err)
	}

	if isWeakSecret(cfg.Admin.JWT.SecretKey) {
		if cfg.Server.Mode == "release" {
			log.Fatalw("admin_jwt_secret_weak")
		}
		log.Warnw("admin_jwt_secret_weak", "hint", "configure a random secret of at least 32 characters")
	}
	if strings.TrimSpace(cfg.Admin.PasswordHash) == "" {
		log.Warnw("admin_password_hash_missing", "hint", "run storectl admin hash-password")
	}

	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := app.Run(app.Options{
		Config: cfg,
		Logger: log,
		Mode:   mode,
	}); err != nil {
		log.Fatalw("app_run_failed", "error", err)
	}
}

func isWeakSecret(secret string) bool {
	if len(secret) < 32 {
		return true
	}
	normalized := strings.ToLower(secret)
	return strings.Contains(normalized, "change-me") ||
		strings.Contains(normalized, "change-in-production") ||
		strings.Contains(normalized, "your-secret-key")
}
