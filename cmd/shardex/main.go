package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/shardex"
)

var logger *slog.Logger

var rootCmd = &cobra.Command{
	Use:   "shardex",
	Short: "Administrative tooling for shardex indexes",
	Long: `Offline maintenance for shardex identity bookkeeping: verify an
index's lookup and reuse rows against each other, repair the drift left
behind by query deletes, and force cache invalidation across shards.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default ./shardex.yaml)")
	flags.String("store", "badger", "store backend: badger or dynamo")
	flags.String("path", "./data", "badger database path")
	flags.String("table", "", "dynamodb table name")
	flags.Int("shards", shardex.DefaultNumShards, "shard count of the index")
	flags.String("log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(verifyCmd, repairCmd, invalidateCmd)
}

func initConfig() {
	if cfg := mustString("config"); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.SetConfigName("shardex")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("SHARDEX")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "bind flags: %v\n", err)
		os.Exit(1)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfg := mustString("config"); cfg != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "read config: %v\n", err)
			os.Exit(1)
		}
	}

	logger = newLogger(viper.GetString("log-level"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func mustString(key string) string {
	v, err := rootCmd.PersistentFlags().GetString(key)
	if err != nil {
		return ""
	}

	if viper.IsSet(key) {
		return viper.GetString(key)
	}

	return v
}

func newVerifier() (*shardex.Verifier, func() error, error) {
	st, closeFn, err := openStore()
	if err != nil {
		return nil, nil, err
	}

	v, err := shardex.NewVerifier(st,
		shardex.WithNumShards(viper.GetInt("shards")),
		shardex.WithLogger(logger),
	)
	if err != nil {
		_ = closeFn()

		return nil, nil, err
	}

	return v, closeFn, nil
}
