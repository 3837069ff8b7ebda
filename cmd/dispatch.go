package cmd

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/face-index/internal/config"
	"github.com/kozaktomas/face-index/internal/dispatcher"
	"github.com/kozaktomas/face-index/internal/events"
	"github.com/kozaktomas/face-index/internal/metrics"
	"github.com/kozaktomas/face-index/internal/queue"
	"github.com/kozaktomas/face-index/internal/vision"
	"github.com/spf13/cobra"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <object-key>",
	Short: "Detect faces in one source image and publish crop tasks",
	Long: `Run the dispatcher once for an object already in the source bucket.

Useful for backfilling images uploaded before the trigger was configured.

Examples:
  face-index dispatch photos/2024/party.jpg
  face-index dispatch photos/2024/party.jpg --token "$(yc iam create-token)"`,
	Args: cobra.ExactArgs(1),
	RunE: runDispatch,
}

func init() {
	rootCmd.AddCommand(dispatchCmd)

	dispatchCmd.Flags().String("token", "", "Detection credential (defaults to VISION_TOKEN)")
	dispatchCmd.Flags().String("token-type", "Bearer", "Credential type, Bearer or Api-Key")
	dispatchCmd.Flags().Bool("json", false, "Output as JSON")
}

func runDispatch(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx, stop := signalContext()
	defer stop()

	cred := configuredCredential(cfg)
	if token := mustGetString(cmd, "token"); token != "" {
		cred = vision.Credential{AccessToken: token, TokenType: mustGetString(cmd, "token-type")}
	}
	if !cred.Valid() {
		return errors.New("a detection credential is required (--token or VISION_TOKEN)")
	}

	sources, err := openSourceBucket(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeQuietly("source bucket", sources.Close)

	if cfg.Queue.FaceTaskTopicURL == "" {
		return errors.New("FACE_TASK_TOPIC_URL environment variable is required")
	}
	publisher, err := queue.OpenPublisher(ctx, cfg.Queue.FaceTaskTopicURL, cfg.Storage.Timeout)
	if err != nil {
		return err
	}
	defer shutdownPublisher(publisher)

	d := dispatcher.New(sources, visionClient(cfg), publisher, metrics.New())
	res, err := d.Dispatch(ctx, events.Upload{ObjectKey: args[0]}, cred)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", args[0], err)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(res)
	}
	fmt.Printf("%s: %d faces detected, %d tasks published\n", res.SourceKey, res.Faces, res.Published)
	return nil
}
