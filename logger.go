package main

import (
	"fmt"
	"os"

	"github.com/fansqz/auto-debugger/config"
	"github.com/sirupsen/logrus"
)

var logFile *os.File

// SetupLogger 根据配置设置日志级别、格式和输出位置
// 没有配置日志文件时输出到stderr，stdout留给mcp等协议使用
func SetupLogger(cfg *config.LogConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logrus.SetLevel(level)

	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.File == "" {
		logrus.SetOutput(os.Stderr)
		return nil
	}
	// 打开文件
	logFile, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		logrus.SetOutput(os.Stderr)
		return fmt.Errorf("open log file %s: %w", cfg.File, err)
	}
	logrus.SetOutput(logFile)
	return nil
}

func CloseLogger() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}
