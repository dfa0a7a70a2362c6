package main

import (
	"bytes"
	"context"
	"flag"
	"log"
	"mime/multipart"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/tekpossible/ems/agent/batch"
	"github.com/tekpossible/ems/agent/config"
	"github.com/tekpossible/ems/agent/httpclient"
	"github.com/tekpossible/ems/agent/monitoring"
	"github.com/tekpossible/ems/agent/spool"
	"github.com/tekpossible/ems/zapctx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to config file")
	version    = "1.0.0"
)

const (
	heartbeatTimeout  = 15 * time.Second
	screenshotTimeout = 60 * time.Second
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()
	zapctx.SetFallback(logger)

	logger.Info("Monitoring agent starting",
		zap.String("version", version),
		zap.String("employee_id", cfg.Agent.EmployeeID),
		zap.String("server", cfg.Agent.Server.URL))

	client := httpclient.NewClient(httpclient.Config{
		ServerURL:     cfg.Agent.Server.URL,
		APIKey:        cfg.Agent.APIKey,
		RetryAttempts: cfg.Agent.Server.RetryAttempts,
		RetryDelay:    cfg.Agent.Server.RetryDelay(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Activity batches and screenshots share one on-disk spool area.
	spoolDir := cfg.Screenshots.SpoolDir
	if spoolDir == "" {
		spoolDir = defaultSpoolDir()
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		runHeartbeat(ctx, client, cfg)
	}()

	if cfg.Activity.Enabled {
		batcher, err := batch.New(batch.Config{
			Client:      client,
			EmployeeID:  cfg.Agent.EmployeeID,
			SpoolDir:    spoolDir,
			FlushSize:   cfg.Activity.FlushBatchSize,
			FlushPeriod: time.Duration(cfg.Activity.FlushIntervalSecs) * time.Second,
		})
		if err != nil {
			logger.Fatal("Failed to init activity batcher", zap.Error(err))
		}

		tracker := monitoring.NewTracker(
			monitoring.StubSampler{},
			time.Duration(cfg.Activity.SampleIntervalSecs)*time.Second,
			batcher.Add,
		)

		wg.Add(2)
		go func() {
			defer wg.Done()
			batcher.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			tracker.Run(ctx)
		}()
		logger.Info("Activity monitoring enabled",
			zap.Int("sample_interval_s", cfg.Activity.SampleIntervalSecs),
			zap.Int("flush_interval_s", cfg.Activity.FlushIntervalSecs))
	} else {
		logger.Info("Activity monitoring disabled")
	}

	if cfg.Screenshots.Enabled {
		sp, err := spool.New(spoolDir, cfg.Screenshots.MaxSpooledFiles)
		if err != nil {
			logger.Fatal("Failed to init screenshot spool", zap.Error(err))
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			runScreenshotUploader(ctx, client, sp, cfg)
		}()
		logger.Info("Screenshot upload enabled",
			zap.String("spool_dir", sp.Dir()),
			zap.Int("interval_min", cfg.Screenshots.UploadIntervalMin))
	} else {
		logger.Info("Screenshot upload disabled")
	}

	<-ctx.Done()
	logger.Info("Shutting down")
	wg.Wait()
	logger.Info("Agent stopped")
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.File != "" {
		if dir := filepath.Dir(cfg.File); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		zcfg.OutputPaths = []string{cfg.File}
		zcfg.ErrorOutputPaths = []string{cfg.File}
	}
	return zcfg.Build()
}

func defaultSpoolDir() string {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	return filepath.Join(cacheDir, "monitoring-agent")
}

func runHeartbeat(ctx context.Context, client *httpclient.Client, cfg *config.Config) {
	interval := time.Duration(cfg.Heartbeat.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	send := func() {
		hbCtx, cancel := context.WithTimeout(ctx, heartbeatTimeout)
		defer cancel()

		err := client.PostJSON(hbCtx, "/api/heartbeat", map[string]string{
			"employee_id": cfg.Agent.EmployeeID,
			"hostname":    cfg.Agent.Hostname,
		})
		if err != nil {
			zapctx.Warn(ctx, "Heartbeat failed", zap.Error(err))
		}
	}

	send()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			send()
		}
	}
}

// runScreenshotUploader drains the spool on an interval: every pending
// PNG is uploaded and removed on acceptance. Files the server rejects
// outright are discarded; transient failures leave the file for the
// next pass, bounded by the spool's prune cap.
func runScreenshotUploader(ctx context.Context, client *httpclient.Client, sp *spool.Spool, cfg *config.Config) {
	interval := time.Duration(cfg.Screenshots.UploadIntervalMin) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			drainSpool(ctx, client, sp, cfg.Agent.EmployeeID)
			if removed, err := sp.Prune(); err != nil {
				zapctx.Warn(ctx, "Failed to prune screenshot spool", zap.Error(err))
			} else if removed > 0 {
				zapctx.Warn(ctx, "Dropped oldest spooled screenshots over cap", zap.Int("removed", removed))
			}
		}
	}
}

func drainSpool(ctx context.Context, client *httpclient.Client, sp *spool.Spool, employeeID string) {
	names, err := sp.List()
	if err != nil {
		zapctx.Error(ctx, "Failed to list screenshot spool", zap.Error(err))
		return
	}

	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		if err := uploadScreenshot(ctx, client, sp, employeeID, name); err != nil {
			if httpclient.IsClientError(err) {
				zapctx.Error(ctx, "Server rejected screenshot; discarding it",
					zap.Error(err), zap.String("file", name))
				sp.Remove(name)
				continue
			}
			zapctx.Warn(ctx, "Screenshot upload failed; keeping it spooled",
				zap.Error(err), zap.String("file", name))
			return
		}
		sp.Remove(name)
	}
}

func uploadScreenshot(ctx context.Context, client *httpclient.Client, sp *spool.Spool, employeeID, name string) error {
	data, err := sp.Read(name)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("employee_id", employeeID); err != nil {
		return err
	}
	if err := mw.WriteField("timestamp", captureTime(name).Format(time.RFC3339Nano)); err != nil {
		return err
	}
	fw, err := mw.CreateFormFile("screenshot", name)
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	upCtx, cancel := context.WithTimeout(ctx, screenshotTimeout)
	defer cancel()
	return client.PostMultipart(upCtx, "/api/upload/screenshot", buf.Bytes(), mw.FormDataContentType())
}

// captureTime recovers the capture timestamp from the spool file name
// (yyyymmdd_hhmmss_microseconds prefix), falling back to now.
func captureTime(name string) time.Time {
	if len(name) >= 15 {
		if ts, err := time.Parse("20060102_150405", name[:15]); err == nil {
			return ts.UTC()
		}
	}
	return time.Now().UTC()
}
