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
	"time"

	"relaybot/pkg/channel"
	"relaybot/pkg/logger"
	"relaybot/pkg/message"
	"relaybot/pkg/session"

	"github.com/avast/retry-go/v4"
	"github.com/spf13/cobra"
)

const (
	connectAttempts = 20
	connectDelay    = 500 * time.Millisecond
)

var (
	postModule  string
	postTargets []string
	postI18n    bool
	postArgs    []string
)

var postCmd = &cobra.Command{
	Use:   "post [text]",
	Short: "Send one message to targets",
	Long:  "Connects the enabled platforms and sends one message to the given targets, or to every target that enabled the module.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.TrimSpace(strings.Join(args, " "))
		if text == "" {
			return errors.New("message text is required")
		}
		if strings.TrimSpace(postModule) == "" && len(postTargets) == 0 {
			return errors.New("either --module or --target is required")
		}

		values, err := parsePostArgs(postArgs)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		slog.SetDefault(appLogger)
		log := appLogger.With("component", "cmd.post")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(runCtx, cfg, appLogger)
		if err != nil {
			return err
		}
		defer a.close()

		platforms, err := a.platforms()
		if err != nil {
			return err
		}

		connCtx, disconnect := context.WithCancel(runCtx)
		defer disconnect()
		for _, platform := range platforms {
			go func() {
				if err := platform.Run(connCtx, ignoreInbound); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("Platform stopped", "channel", platform.Name(), "error", err)
				}
			}()
		}

		if err := waitConnected(connCtx, platforms); err != nil {
			return err
		}

		post := session.Post{Text: text, I18n: postI18n, Args: values}
		results := a.resolver.PostMessage(runCtx, postModule, post, postTargets)

		failed := 0
		for _, result := range results {
			status := "ok"
			if result.Err != nil {
				status = result.Err.Error()
				failed++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", result.Target, status)
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d targets failed", failed, len(results))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(postCmd)
	postCmd.Flags().StringVarP(&postModule, "module", "m", "", "module whose enabled targets receive the message")
	postCmd.Flags().StringArrayVarP(&postTargets, "target", "t", nil, "explicit platform|id target (repeatable)")
	postCmd.Flags().BoolVar(&postI18n, "i18n", false, "treat the text as a locale key")
	postCmd.Flags().StringArrayVar(&postArgs, "arg", nil, "locale argument as key=value (repeatable)")
}

func ignoreInbound(context.Context, *session.MessageSession, message.Chain) error {
	return nil
}

// parsePostArgs turns key=value flags into locale arguments.
func parsePostArgs(raw []string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	values := make(map[string]any, len(raw))
	for _, item := range raw {
		key, value, ok := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --arg %q, want key=value", item)
		}
		values[key] = value
	}

	return values, nil
}

// waitConnected polls every platform until it can open posters.
func waitConnected(ctx context.Context, platforms []channel.Platform) error {
	for _, platform := range platforms {
		probe := session.Target{TargetFrom: platform.Platform(), TargetID: "0"}
		err := retry.Do(
			func() error {
				_, err := platform.Open(ctx, probe)
				return err
			},
			retry.Context(ctx),
			retry.Attempts(connectAttempts),
			retry.Delay(connectDelay),
			retry.DelayType(retry.FixedDelay),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			return fmt.Errorf("connect %s: %w", platform.Name(), err)
		}
	}

	return nil
}
