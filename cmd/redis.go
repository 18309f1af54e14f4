package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"VibeLock/cache"
	"VibeLock/repository"

	"github.com/spf13/cobra"
)

var (
	redisWallet  string
	redisSession string
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试Redis连接是否成功，并进行基本读写操作。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := setup()
		fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		if err := cache.ConnectRedis(cfg); err != nil {
			return err
		}
		defer cache.CloseRedis()
		fmt.Println("Redis连接成功！")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cache.CheckRedis(ctx); err != nil {
			return fmt.Errorf("Redis操作测试失败: %w", err)
		}
		fmt.Println("Redis基本操作测试成功！")
		return nil
	},
}

var redisSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "列出钱包打开的播放会话",
	RunE: func(cmd *cobra.Command, args []string) error {
		if redisWallet == "" {
			return fmt.Errorf("--wallet is required")
		}
		cfg := setup()
		if err := cache.ConnectRedis(cfg); err != nil {
			return err
		}
		defer cache.CloseRedis()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		sc := cache.NewSessionCache(cfg.SnapshotTTL)
		ids, err := sc.WalletSessions(ctx, repository.WalletKey(redisWallet))
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("没有打开的会话")
			return nil
		}

		for _, id := range ids {
			snap, err := sc.GetSnapshot(ctx, id)
			if err != nil {
				fmt.Printf("%s\t(快照读取失败: %v)\n", id, err)
				continue
			}
			updated, _ := sc.LastUpdated(ctx, id)
			title := "-"
			if snap != nil && snap.CurrentTrack != nil {
				title = snap.CurrentTrack.Title
			}
			playing := snap != nil && snap.IsPlaying
			fmt.Printf("%s\t%s\tplaying=%v\tupdated=%s\n",
				id, title, playing, time.UnixMilli(updated).Format(time.RFC3339))
		}
		return nil
	},
}

var redisWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "订阅会话快照推送",
	RunE: func(cmd *cobra.Command, args []string) error {
		if redisSession == "" {
			return fmt.Errorf("--session is required")
		}
		cfg := setup()
		if err := cache.ConnectRedis(cfg); err != nil {
			return err
		}
		defer cache.CloseRedis()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		sub, err := cache.NewSessionCache(cfg.SnapshotTTL).Subscribe(ctx, redisSession)
		if err != nil {
			return err
		}
		defer sub.Close()

		fmt.Printf("订阅 %s，Ctrl+C 退出\n", cache.EventsChannel(redisSession))
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-ch:
				if !ok {
					return nil
				}
				var pretty map[string]interface{}
				if err := json.Unmarshal([]byte(msg.Payload), &pretty); err != nil {
					fmt.Println(msg.Payload)
					continue
				}
				out, _ := json.MarshalIndent(pretty, "", "  ")
				fmt.Println(string(out))
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
	redisCmd.AddCommand(redisSessionsCmd, redisWatchCmd)

	redisSessionsCmd.Flags().StringVarP(&redisWallet, "wallet", "w", "", "钱包地址")
	redisWatchCmd.Flags().StringVarP(&redisSession, "session", "s", "", "会话 ID")
}
