package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kozaktomas/face-index/internal/config"
	"github.com/kozaktomas/face-index/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-index",
	Short: "Face crop pipeline and Telegram labeling bot",
	Long: `Face Index extracts face crops from uploaded images and makes them
browsable and labelable through a Telegram bot.

An upload event is dispatched to the face detection service, each detected
face becomes a queued crop task, and every crop is stored and indexed against
its source image in PostgreSQL.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	cfg := config.Load()
	logging.Setup(logging.Config{Format: cfg.Logging.Format, Level: cfg.Logging.Level})
}
