package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"relaybot/pkg/channel"
	"relaybot/pkg/gateway"
	"relaybot/pkg/logger"

	"github.com/spf13/cobra"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run channel gateway mode",
	Long:  "Runs relaybot on every enabled platform with health, readiness and status endpoints.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.gateway")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(runCtx, cfg, slog.Default())
		if err != nil {
			return err
		}
		defer a.close()

		platforms, err := a.platforms()
		if err != nil {
			log.Error("Gateway configuration invalid", "error", err)
			return err
		}
		adapters := asAdapters(platforms)

		svc, err := gateway.NewService(cfg, adapters, a.gatewayDeps(), slog.Default())
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return err
		}

		log.Info("Gateway started", "channels", enabledChannelNames(adapters), "modules", strings.Join(a.modules.Names(), ","))
		if err := svc.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Gateway runtime failed", "error", err)
			return err
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}

func asAdapters(platforms []channel.Platform) []channel.Adapter {
	adapters := make([]channel.Adapter, 0, len(platforms))
	for _, platform := range platforms {
		adapters = append(adapters, platform)
	}

	return adapters
}

func enabledChannelNames(adapters []channel.Adapter) string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return strings.Join(names, ",")
}
