package cmd

import (
	"context"
	"fmt"
	"time"

	"VibeLock/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioLimit  int
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶检查",
	Long:  `连接MinIO并列出存储桶中的音频对象，确认曲库中的 minio:// 与 s3:// 地址可以签名。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := setup()
		if !cfg.MinioEnabled() {
			return fmt.Errorf("MINIO_ENDPOINT and MINIO_ACCESS_KEY must be set")
		}
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		if err := storage.InitMinio(cfg); err != nil {
			return fmt.Errorf("无法连接到MinIO: %w", err)
		}
		fmt.Println("MinIO连接成功！")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		keys, err := storage.ListObjects(ctx, cfg.MinioBucket, minioPrefix, minioLimit)
		if err != nil {
			return fmt.Errorf("列出文件失败: %w", err)
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		fmt.Printf("\n共 %d 个对象 (前缀: %q)\n", len(keys), minioPrefix)
		return nil
	},
}

var minioSignCmd = &cobra.Command{
	Use:   "sign <locator>",
	Short: "把曲目地址转换成可播放的 URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := setup()
		signer, err := newSigner(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		url, err := signer.Sign(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(url)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)
	minioCmd.AddCommand(minioSignCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤文件")
	minioCmd.Flags().IntVarP(&minioLimit, "limit", "n", 100, "最多列出的对象数，0 为不限")

	minioCmd.Example = `  # 列出音频目录
  vibelock minio -p "audio/"

  # 生成预签名地址
  vibelock minio sign minio://audio/night-drive.flac
  vibelock minio sign ipfs://bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi`
}
