package cmd

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/kozaktomas/face-index/internal/config"
	"github.com/kozaktomas/face-index/internal/telegram"
	"github.com/spf13/cobra"
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage the Telegram bot webhook",
}

var webhookSetCmd = &cobra.Command{
	Use:   "set <url>",
	Short: "Register the public webhook URL with Telegram",
	Long: `Register the URL Telegram delivers bot updates to.

The URL must point at the /telegram/webhook route of "face-index serve".
When TELEGRAM_WEBHOOK_SECRET is set it is registered as the secret token
and every delivery is checked against it.

Examples:
  face-index webhook set https://faces.example.com/telegram/webhook`,
	Args: cobra.ExactArgs(1),
	RunE: runWebhookSet,
}

func init() {
	rootCmd.AddCommand(webhookCmd)
	webhookCmd.AddCommand(webhookSetCmd)
}

func runWebhookSet(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Telegram.Token == "" {
		return errors.New("TELEGRAM_BOT_TOKEN environment variable is required")
	}

	u, err := url.Parse(args[0])
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("webhook URL must be an absolute https URL: %q", args[0])
	}

	ctx, stop := signalContext()
	defer stop()

	client := telegram.NewClient(cfg.Telegram.APIURL, cfg.Telegram.Token, cfg.Telegram.Timeout)
	if err := client.SetWebhook(ctx, u.String(), cfg.Telegram.WebhookSecret); err != nil {
		return fmt.Errorf("setting webhook: %w", err)
	}

	fmt.Printf("Webhook set to %s\n", u.String())
	if cfg.Telegram.WebhookSecret == "" {
		fmt.Println("Warning: TELEGRAM_WEBHOOK_SECRET is empty, deliveries are not authenticated")
	}
	return nil
}
