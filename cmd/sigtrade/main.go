package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"sigtrade/internal/app"
	sgcfg "sigtrade/internal/config"
	"sigtrade/internal/logger"
)

const usage = `usage: sigtrade [live|backtest]

  live      run the paper-trading loop and dashboard (default)
  backtest  replay cached history for backtest.symbol and write a report

config path: $SIGTRADE_CONFIG (default configs/config.yaml)`

func main() {
	mode := "live"
	if len(os.Args) > 1 {
		mode = strings.ToLower(strings.TrimSpace(os.Args[1]))
	}
	if mode == "-h" || mode == "--help" || mode == "help" {
		fmt.Println(usage)
		return
	}
	if mode != "live" && mode != "backtest" {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfgPath := os.Getenv("SIGTRADE_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}
	cfg, err := sgcfg.Load(cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("初始化日志文件失败: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s，模式=%s，币种=%v）", cfg.App.Env, mode, cfg.Trading.Symbols)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if mode == "backtest" {
		out, err := app.RunBacktest(ctx, cfg)
		if err != nil {
			log.Fatalf("回测失败: %v", err)
		}
		fmt.Printf("report: %s\n", out.ReportDir)
		return
	}

	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}
	if err := a.Run(ctx); err != nil {
		log.Fatalf("运行失败: %v", err)
	}
	logger.Infof("已退出")
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
