package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"VibeLock/cache"
	"VibeLock/catalog"
	"VibeLock/config"
	"VibeLock/core/auth"
	"VibeLock/core/session"
	"VibeLock/core/unlock"
	"VibeLock/db"
	"VibeLock/logger"
	"VibeLock/repository"
	"VibeLock/server"
	"VibeLock/storage"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 VibeLock 服务器",
	Long:  `启动 HTTP 与 WebSocket 服务：钱包登录、曲库查询、持仓更新以及播放会话控制。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg := setup()
	defer logger.Sync()

	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// MySQL：曲库与持仓
	if err := db.ConnectGormDB(cfg); err != nil {
		return err
	}
	defer db.CloseGormDB()
	if err := db.AutoMigrate(); err != nil {
		return err
	}
	trackRepo := repository.NewGormTrackRepository(db.GormDB)
	balanceRepo := repository.NewGormBalanceRepository(db.GormDB)

	// Redis 不可用时降级：不缓存解锁结果，不镜像会话快照
	var (
		unlockCache unlock.Cache
		store       session.SnapshotStore
	)
	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Warn("redis unavailable, running without cache", logger.ErrorField(err))
	} else {
		defer cache.CloseRedis()
		unlockCache = cache.NewUnlockCache(cfg.UnlockCacheTTL)
		store = cache.NewSessionCache(cfg.SnapshotTTL)
		logger.Info("redis cache enabled",
			logger.Duration("unlockTTL", cfg.UnlockCacheTTL),
			logger.Duration("snapshotTTL", cfg.SnapshotTTL))
	}

	signer, err := newSigner(cfg)
	if err != nil {
		return err
	}

	source, err := newCatalogSource(ctx, cfg, trackRepo)
	if err != nil {
		return err
	}
	catalogSvc := catalog.NewService(source, balanceRepo, cfg.FeedLimit)

	checker := unlock.NewChecker(balanceRepo, unlockCache, cfg.UnlockPrefetchSize)

	hub := session.NewHub()
	manager := session.NewManager(hub, session.Config{
		Locks:      checker,
		Catalog:    catalogSvc,
		Signer:     signer,
		Store:      store,
		Prefetcher: checker,
	})
	checker.OnChange(manager.OnBalanceChanged)

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTExpiry)
	if cfg.IndexerToken == "" {
		logger.Warn("INDEXER_TOKEN not set, balance ingestion endpoint disabled")
	}
	api := server.NewAPIHandler(issuer, catalogSvc, balanceRepo, checker, manager, cfg.IndexerToken)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run()
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		hub.Stop()
		return nil
	})
	g.Go(func() error {
		return server.Run(ctx, cfg.HTTPAddr, server.NewRouter(api))
	})
	return g.Wait()
}

// newSigner 未配置 MinIO 时只支持 http(s) 与 ipfs 地址
func newSigner(cfg *config.Config) (*storage.Signer, error) {
	var presigner storage.Presigner
	if cfg.MinioEnabled() {
		if err := storage.InitMinio(cfg); err != nil {
			return nil, err
		}
		presigner = storage.GetMinioClient()
	} else {
		logger.Info("minio not configured, s3:// and minio:// locators stay unsigned")
	}
	return storage.NewSigner(presigner, cfg.MinioBucket, cfg.PresignExpiry, cfg.IPFSGateway), nil
}

func newCatalogSource(ctx context.Context, cfg *config.Config, repo repository.TrackRepository) (catalog.Source, error) {
	if cfg.CatalogFile == "" {
		return catalog.NewRepoSource(repo), nil
	}

	fs, err := catalog.NewFileSource(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}
	if err := fs.Watch(ctx); err != nil {
		logger.Warn("catalog hot reload disabled", logger.ErrorField(err))
	}
	logger.Info("catalog loaded from file", logger.String("path", cfg.CatalogFile))
	return fs, nil
}
