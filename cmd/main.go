package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	api "github.com/facelocker/facelocker-server/internal/api/http"
	"github.com/facelocker/facelocker-server/internal/config"
	"github.com/facelocker/facelocker-server/internal/logger"
	"github.com/facelocker/facelocker-server/internal/service"
	"github.com/facelocker/facelocker-server/internal/storage"
	"github.com/facelocker/facelocker-server/internal/vision/opencv"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	backend, err := storage.NewBackend(ctx, &cfg.Storage)
	if err != nil {
		logger.Fatal("failed to initialize storage backend", "error", err)
	}

	detector, err := opencv.NewHaarDetector(cfg.CascadeFile, cfg.Detect.ScaleFactor, cfg.Detect.MinNeighbors)
	if err != nil {
		logger.Fatal("failed to initialize face detector", "error", err)
	}
	defer detector.Close()

	factory := opencv.NewLBPHFactory()
	cache := service.NewModelCache(backend, factory, logger)
	faceService := service.NewFace(backend, factory, detector, cache, cfg.ConfidenceThreshold, logger)

	handler := api.NewHandler(faceService, logger)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: api.NewRouter(handler, cfg.AdminToken),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting server", "address", srv.Addr, "backend", cfg.Storage.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", "error", err)
		}
	}()

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err)
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
