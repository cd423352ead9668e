package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xaenox/stylist-bot/internal/bot"
)

func init() {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot",
		Long:  "Long-polls Telegram and answers outfit photos and style questions. Requires telegram.token or TELEGRAM_TOKEN.",
		RunE:  runBot,
	}

	RootCmd.AddCommand(cmd)
}

func runBot(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Telegram.Token == "" {
		return errors.New("telegram token is not configured")
	}

	b, err := bot.New(a.cfg.Telegram.Token, a.sessions, a.selector, a.logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("bot: %w", err)
	}
	a.logger.Info("Bot stopped")
	return nil
}
