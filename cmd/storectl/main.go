// Package main provides storectl, the operator CLI for the license shop backend.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/licenseshop/internal/config"
	"github.com/licenseshop/internal/logger"
	"github.com/licenseshop/internal/provider"
)

func main() {
	if err := newRootCmd(loadContainerDeps).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadContainerDeps 按 config.yml 初始化容器，命令结束后释放
func loadContainerDeps() (*deps, func(), error) {
	cfg := config.Load()
	logger.Init("release", cfg.Log.ToLoggerOptions())
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	container, err := provider.NewContainer(cfg)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		container.Close(ctx)
		logger.Sync()
	}
	return &deps{orders: container.OrderAdminService, invoices: container.InvoiceService}, closeFn, nil
}
