package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"VibeLock/config"
	"VibeLock/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	minioClient *minio.Client
)

// InitMinio 初始化 MinIO 客户端并确认存储桶存在
func InitMinio(cfg *config.Config) error {
	logger.Info("connecting to minio",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("region", cfg.MinioRegion),
		logger.String("bucket", cfg.MinioBucket),
		logger.String("accessKey", mask(cfg.MinioAccessKey)))

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("minio bucket created", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	return nil
}

// GetMinioClient 获取 MinIO 客户端实例，未初始化时为 nil
func GetMinioClient() *minio.Client {
	return minioClient
}

// ListObjects 列出前缀下的对象，供命令行检查使用
func ListObjects(ctx context.Context, bucket, prefix string, limit int) ([]string, error) {
	if minioClient == nil {
		return nil, ErrSignerDisabled
	}

	// 提前 break 时取消，让 minio 的列举协程退出
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var keys []string
	for obj := range minioClient.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return keys, obj.Err
		}
		keys = append(keys, obj.Key)
		if limit > 0 && len(keys) >= limit {
			break
		}
	}
	return keys, nil
}

func mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + "..."
}
