package cmd

import (
	"context"
	"fmt"
	"time"

	"VibeLock/catalog"
	"VibeLock/db"
	"VibeLock/repository"

	"github.com/spf13/cobra"
)

var catalogLimit int

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "曲库管理",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "把 YAML 曲库导入 MySQL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tracks, err := catalog.LoadFile(args[0])
		if err != nil {
			return err
		}

		cfg := setup()
		if err := db.ConnectGormDB(cfg); err != nil {
			return err
		}
		defer db.CloseGormDB()
		if err := db.AutoMigrate(); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		src := catalog.NewRepoSource(repository.NewGormTrackRepository(db.GormDB))
		n, err := src.Import(ctx, tracks)
		if err != nil {
			return fmt.Errorf("导入中断，已写入 %d 首: %w", n, err)
		}
		fmt.Printf("导入完成：%d 首\n", n)
		return nil
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出曲库首页曲目",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := setup()
		if err := db.ConnectGormDB(cfg); err != nil {
			return err
		}
		defer db.CloseGormDB()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		src := catalog.NewRepoSource(repository.NewGormTrackRepository(db.GormDB))
		tracks, err := src.Feed(ctx, catalogLimit)
		if err != nil {
			return err
		}
		for _, t := range tracks {
			premium := "preview"
			if t.PremiumAudio != "" {
				premium = "premium"
			}
			fmt.Printf("%s\t%s - %s\t%s\n", t.ID, t.Artist, t.Title, premium)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogImportCmd, catalogListCmd)

	catalogListCmd.Flags().IntVarP(&catalogLimit, "limit", "n", 50, "最多列出的曲目数")
}
