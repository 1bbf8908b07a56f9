package logger

import (
	"io"

	"hgnc/internal/config"

	"github.com/sirupsen/logrus"
)

// New 初始化日志，release 模式或 format=json 时输出 JSON
func New(output io.Writer, cfg config.LogConfig, mode string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(output)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if mode == "release" || cfg.Format == "json" {
		l.SetFormatter(new(logrus.JSONFormatter))
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	return l
}

// Discard 测试使用，丢弃所有输出
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
