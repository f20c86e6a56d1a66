package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/yourorg/form-imports/internal/api"
	"github.com/yourorg/form-imports/internal/cache"
	"github.com/yourorg/form-imports/internal/config"
	"github.com/yourorg/form-imports/internal/db"
	"github.com/yourorg/form-imports/internal/importer"
	"github.com/yourorg/form-imports/internal/metrics"
	"github.com/yourorg/form-imports/internal/reports"
	"github.com/yourorg/form-imports/internal/storage"
	"github.com/yourorg/form-imports/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl := newZap(getenv("LOG_LEVEL", "info"))
	defer zl.Sync()

	ctx := context.Background()

	// Document store (forms and records) through gorm.
	gdb, err := gorm.Open(postgres.Open(cfg.DB.ConnString()), &gorm.Config{})
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	if err := store.Migrate(gdb); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	docs := store.New(gdb)

	// Job table through pgx; the executor checkpoints progress here.
	pool, err := db.Connect(ctx, cfg.DB.ConnString())
	if err != nil {
		log.Fatalf("connect job store: %v", err)
	}
	defer pool.Close()
	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("job schema: %v", err)
	}
	jobs := db.NewJobRepo(pool)

	repStore, err := reports.Open(cfg.Import.ReportDir, cfg.Import.ReportTTL)
	if err != nil {
		log.Fatalf("report store: %v", err)
	}
	defer repStore.Close()

	objects, err := storage.NewS3(ctx)
	if err != nil {
		log.Fatalf("object store: %v", err)
	}
	uploadBase := "s3://" + cfg.Storage.Bucket + "/uploads"
	reportBase := "s3://" + cfg.Storage.Bucket + "/imports"
	if cfg.Storage.LocalDir != "" {
		_ = os.MkdirAll(cfg.Storage.LocalDir+"/uploads", 0o777)
		_ = os.MkdirAll(cfg.Storage.LocalDir+"/imports", 0o777)
		uploadBase = "file://" + cfg.Storage.LocalDir + "/uploads"
		reportBase = "file://" + cfg.Storage.LocalDir + "/imports"
	}

	metrics.Init()
	go func() {
		if err := metrics.Serve(cfg.MetricsAddr); err != nil {
			zl.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	exec := &importer.Executor{
		Files:     storage.Files{Store: objects},
		Forms:     docs,
		Records:   docs,
		Jobs:      jobs,
		Reports:   repStore,
		Artifacts: storage.Artifacts{Store: objects, Base: reportBase},
		Log:       zl,
		BatchSize: cfg.Import.BatchSize,
	}

	r := gin.Default()
	r.MaxMultipartMemory = storage.MaxUploadBytes

	origins := cfg.HTTP.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Tenant-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
	}))

	h := &api.Handler{
		Objects:    objects,
		UploadBase: uploadBase,
		Forms:      docs,
		Jobs:       jobs,
		Executor:   exec,
		Reports:    repStore,
		Schemas:    cache.New[importer.Form](cfg.Import.SchemaTTL, nil),
		SampleSize: cfg.Import.SampleSize,
		Log:        zl,
	}
	h.Register(r)

	zl.Info("server starting",
		zap.String("addr", cfg.HTTP.Addr), zap.String("metrics", cfg.MetricsAddr),
		zap.Duration("schemaTTL", cfg.Import.SchemaTTL))
	if err := r.Run(cfg.HTTP.Addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func newZap(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	return logger
}
