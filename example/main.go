package main

import (
	"context"
	"log"

	"github.com/J1407B-K/buffwire/buff"
	"go.uber.org/zap"
)

func main() {
	cfg, err := buff.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := buff.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	e := buff.NewEngine(cfg.Options(logger)...)
	e.Use(buff.Logger(logger))

	e.POST("/ping", PongHandler)
	e.POST("/upload", UploadHandler)
	e.GET("/hello/:name", func(c *buff.Context) {
		_ = c.JSON(200, map[string]string{"hi": c.Param("name")})
	})

	if err := e.R.Verify(); err != nil {
		logger.Fatal("verify routes", zap.Error(err))
	}

	if err := e.Run(context.Background(), cfg.Addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
