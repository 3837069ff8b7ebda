package constants

// HTTP constants
const (
	// MaxTriggerBodySize bounds trigger and webhook request bodies (1MB)
	MaxTriggerBodySize = 1 << 20

	// TelegramSecretHeader carries the webhook secret set via setWebhook
	TelegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
)
