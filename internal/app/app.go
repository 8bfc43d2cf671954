package app

import (
	"context"
	"fmt"
	"os"

	brcfg "sigtrade/internal/config"
	"sigtrade/internal/control"
	"sigtrade/internal/engine"
	"sigtrade/internal/logger"
	livehttp "sigtrade/internal/transport/http/live"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动实时交易循环与看板。
type App struct {
	cfg     *brcfg.Config
	engine  *engine.Engine
	server  *livehttp.Server
	control *control.Switch
	closers []func()
	Summary *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(ctx context.Context, cfg *brcfg.Config, opts ...AppBuilderOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(ctx, cfg, opts...)
}

// Run 启动交易循环、看板与控制文件监听，任一失败则整体退出。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.engine == nil {
		return fmt.Errorf("engine not initialized")
	}
	defer a.Close()

	if a.Summary != nil {
		a.Summary.Print(os.Stdout)
	}

	group, ctx := errgroup.WithContext(ctx)
	if a.server != nil {
		group.Go(func() error {
			if err := a.server.Start(ctx); err != nil {
				return fmt.Errorf("dashboard server error: %w", err)
			}
			return nil
		})
	}
	if a.control != nil {
		group.Go(func() error {
			if err := a.control.Watch(ctx); err != nil {
				// 监听失败时仍可通过 HTTP /control 切换状态。
				appLog.Warnf("control file watch stopped: %v", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		return a.engine.Run(ctx)
	})
	return group.Wait()
}

// Close 释放账本等资源，可重复调用。
func (a *App) Close() {
	if a == nil {
		return
	}
	closers := a.closers
	a.closers = nil
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

// Engine exposes the live loop (for tests and replay harnesses).
func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}

// Server exposes the dashboard server.
func (a *App) Server() *livehttp.Server {
	if a == nil {
		return nil
	}
	return a.server
}
