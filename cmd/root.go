package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openchargingcloud/wwcp/app"
	"github.com/openchargingcloud/wwcp/config"
	"github.com/openchargingcloud/wwcp/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "wwcp",
	Short:        "WWCP charging infrastructure service",
	SilenceUsage: true,
	RunE:         run,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load the network and serve the API",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}

// loadInfrastructure returns the document named by --file or, without it,
// by the network section of the configuration.
func loadInfrastructure(path string) (id string, doc infrastructure, err error) {
	id = "default"
	if path == "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return "", doc, fmt.Errorf("load config: %w", err)
		}
		id, path = cfg.Network.ID, cfg.Network.Infrastructure
	}
	if path == "" {
		return "", doc, fmt.Errorf("no infrastructure document configured")
	}
	doc, err = config.LoadInfrastructure(path)
	return id, doc, err
}

func withContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
