package cmd

import (
	"fmt"
	"os"

	"VibeLock/config"
	"VibeLock/logger"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vibelock",
	Short: "VibeLock is a coin-gated music playback service.",
	// 不带子命令时直接启动服务
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
	SilenceUsage: true,
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and initialises the logger.
func setup() *config.Config {
	cfg := config.Load()
	logger.InitLogger(logger.Config{
		Level:       logger.ParseLevel(cfg.LogLevel),
		OutputPath:  cfg.LogFile,
		MaxSize:     cfg.LogMaxSize,
		MaxBackups:  cfg.LogMaxBackups,
		MaxAge:      cfg.LogMaxAge,
		Compress:    true,
		Development: cfg.LogDev,
	})
	return cfg
}
