package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"relaybot/pkg/channel"
	"relaybot/pkg/channel/console"
	"relaybot/pkg/gateway"
	"relaybot/pkg/logger"

	"github.com/spf13/cobra"
)

var interactiveConsole bool

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Talk to the bot from the terminal",
	Long:  "Runs relaybot modules against the local terminal. Lines starting with the command prefix invoke modules; exit, quit or :q leaves.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		interactive := interactiveConsole || cfg.Channels.Console.Interactive

		// The full-screen UI owns the terminal, so logs are dropped there.
		appLogger := logger.Discard()
		if !interactive {
			appLogger, err = logger.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
		}
		slog.SetDefault(appLogger)

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(runCtx, cfg, appLogger)
		if err != nil {
			return err
		}
		defer a.close()

		adapter, err := console.NewAdapter(console.Options{
			In:          cmd.InOrStdin(),
			Out:         cmd.OutOrStdout(),
			Interactive: interactive,
		}, a.channelDeps(), appLogger)
		if err != nil {
			return err
		}
		a.resolver.Register(adapter)

		svc, err := gateway.NewService(cfg, []channel.Adapter{adapter}, a.gatewayDeps(), appLogger, gateway.WithoutStatusServer())
		if err != nil {
			return fmt.Errorf("initialize console session: %w", err)
		}

		return runUntilAdapterExits(runCtx, svc, adapter)
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().BoolVarP(&interactiveConsole, "interactive", "i", false, "use the full-screen terminal UI")
}

// runUntilAdapterExits runs svc and stops it once the console adapter returns.
func runUntilAdapterExits(ctx context.Context, svc *gateway.Service, adapter *console.Adapter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-adapter.Done()
		cancel()
	}()

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
