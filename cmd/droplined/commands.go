package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dropline-network/dropline-node/distributor/config"
	"github.com/dropline-network/dropline-node/distributor/constant"
	"github.com/dropline-network/dropline-node/distributor/logger"
	"github.com/dropline-network/dropline-node/distributor/node"
)

// Version and Commit are set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = ""
)

func InitRootCmd(rootCmd *cobra.Command) {
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(initConfigCmd())
	rootCmd.AddCommand(campaignCmd())
	rootCmd.AddCommand(queryCmd())
}

// defaultHome resolves the node home directory: the DROPLINED_HOME
// environment variable when set, the per-user default otherwise.
func defaultHome() string {
	if v := os.Getenv("DROPLINED_HOME"); v != "" {
		return v
	}
	return constant.DefaultNodeHome
}

// loadOrInitConfig loads the node config, writing the default one on first
// run. An existing but broken config is reported, never overwritten.
func loadOrInitConfig(home string) (*config.Config, error) {
	cfg, err := config.Load(home)
	if err == nil {
		return &cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	defaultCfg, err := config.LoadDefaultConfig()
	if err != nil {
		return nil, err
	}
	if err := config.Save(defaultCfg, home); err != nil {
		return nil, fmt.Errorf("failed to write default config: %w", err)
	}
	return defaultCfg, nil
}

func startCmd() *cobra.Command {
	var home string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the distributor node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadOrInitConfig(home)
			if err != nil {
				return err
			}

			log := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.LogSampler)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			n, err := node.NewNode(ctx, cfg, home, log)
			if err != nil {
				return err
			}
			return n.Start()
		},
	}

	cmd.Flags().StringVar(&home, "home", defaultHome(), "Node home directory")
	return cmd
}

func initConfigCmd() *cobra.Command {
	var home string

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write the default config to the node home",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(home); err == nil {
				return fmt.Errorf("config already exists under %s", home)
			}

			cfg, err := config.LoadDefaultConfig()
			if err != nil {
				return err
			}
			if err := config.Save(cfg, home); err != nil {
				return err
			}

			fmt.Printf("Default config written to %s\n", filepath.Join(home, constant.ConfigSubdir, constant.ConfigFileName))
			return nil
		},
	}

	cmd.Flags().StringVar(&home, "home", defaultHome(), "Node home directory")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print droplined version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Name:    droplined\n")
			fmt.Printf("Version: %s\n", Version)
			fmt.Printf("Commit:  %s\n", Commit)
		},
	}
}
