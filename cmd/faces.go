package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kozaktomas/face-index/internal/config"
	"github.com/kozaktomas/face-index/internal/constants"
	"github.com/kozaktomas/face-index/internal/database"
	"github.com/kozaktomas/face-index/internal/faces"
	"github.com/spf13/cobra"
)

var facesCmd = &cobra.Command{
	Use:   "faces",
	Short: "Inspect and label entries in the face index",
}

var facesUnlabeledCmd = &cobra.Command{
	Use:   "unlabeled",
	Short: "List face keys that have no label yet",
	Args:  cobra.NoArgs,
	RunE:  runFacesUnlabeled,
}

var facesShowCmd = &cobra.Command{
	Use:   "show <face-key>",
	Short: "Show the index row of one face crop",
	Args:  cobra.ExactArgs(1),
	RunE:  runFacesShow,
}

var facesLabelCmd = &cobra.Command{
	Use:   "label <face-key> <name>",
	Short: "Assign a name to a face crop",
	Long: `Assign a name to a face crop, replacing any earlier label.

The name is trimmed and normalized the same way the chat bot does it,
so "face-index faces find" and the bot's /find see the same value.

Examples:
  face-index faces label face_3f2b8c1e-9a4d-4c7e-8f1a-2b3c4d5e6f70.jpeg Alice`,
	Args: cobra.MinimumNArgs(2),
	RunE: runFacesLabel,
}

var facesFindCmd = &cobra.Command{
	Use:   "find <name>",
	Short: "List source images containing a labeled face",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFacesFind,
}

func init() {
	rootCmd.AddCommand(facesCmd)
	facesCmd.AddCommand(facesUnlabeledCmd, facesShowCmd, facesLabelCmd, facesFindCmd)

	facesCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	facesUnlabeledCmd.Flags().Int("limit", constants.DefaultListLimit, "Maximum number of keys to list, 0 lists all")
}

type faceRowOutput struct {
	FaceKey     string  `json:"face_key"`
	OriginalKey string  `json:"original_key"`
	Label       *string `json:"label"`
	CreatedAt   string  `json:"created_at"`
}

// faceOps runs the operator subcommands against an index and prints the
// results to out.
type faceOps struct {
	index database.FaceWriter
	out   io.Writer
	json  bool
}

func (o *faceOps) print(data any, text func(w io.Writer)) error {
	if o.json {
		return writeJSON(o.out, data)
	}
	text(o.out)
	return nil
}

func (o *faceOps) unlabeled(ctx context.Context, limit int) error {
	if limit < 0 {
		return errors.New("--limit must not be negative")
	}
	keys, err := o.index.ListUnlabeled(ctx, limit)
	if err != nil {
		return fmt.Errorf("listing unlabeled faces: %w", err)
	}
	return o.print(keys, func(w io.Writer) {
		if len(keys) == 0 {
			fmt.Fprintln(w, "All faces are labeled")
			return
		}
		for _, key := range keys {
			fmt.Fprintln(w, key)
		}
	})
}

func (o *faceOps) show(ctx context.Context, key string) error {
	if !faces.ValidKey(key) {
		return fmt.Errorf("invalid face key %q", key)
	}
	row, err := o.index.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("loading %s: %w", key, err)
	}

	out := faceRowOutput{
		FaceKey:     row.FaceKey,
		OriginalKey: row.OriginalKey,
		Label:       row.Label,
		CreatedAt:   row.CreatedAt.UTC().Format(time.RFC3339),
	}
	return o.print(out, func(w io.Writer) {
		label := "(none)"
		if row.Labeled() {
			label = *row.Label
		}
		fmt.Fprintf(w, "Face:     %s\n", out.FaceKey)
		fmt.Fprintf(w, "Original: %s\n", out.OriginalKey)
		fmt.Fprintf(w, "Label:    %s\n", label)
		fmt.Fprintf(w, "Created:  %s\n", out.CreatedAt)
	})
}

func (o *faceOps) label(ctx context.Context, key string, name []string) error {
	if !faces.ValidKey(key) {
		return fmt.Errorf("invalid face key %q", key)
	}
	label := faces.NormalizeLabel(strings.Join(name, " "))
	if label == "" {
		return errors.New("name must not be empty")
	}
	if err := o.index.SetLabel(ctx, key, label); err != nil {
		return fmt.Errorf("labeling %s: %w", key, err)
	}
	return o.print(map[string]string{"face_key": key, "label": label}, func(w io.Writer) {
		fmt.Fprintf(w, "%s labeled %q\n", key, label)
	})
}

func (o *faceOps) find(ctx context.Context, name []string) error {
	label := faces.NormalizeLabel(strings.Join(name, " "))
	if label == "" {
		return errors.New("name must not be empty")
	}
	originals, err := o.index.FindByLabel(ctx, label)
	if err != nil {
		return fmt.Errorf("finding %q: %w", label, err)
	}
	return o.print(originals, func(w io.Writer) {
		if len(originals) == 0 {
			fmt.Fprintf(w, "No photos of %s found\n", label)
			return
		}
		for _, key := range originals {
			fmt.Fprintln(w, key)
		}
	})
}

// withFaceOps opens the index for the duration of fn.
func withFaceOps(cmd *cobra.Command, fn func(ctx context.Context, o *faceOps) error) error {
	cfg := config.Load()
	ctx, stop := signalContext()
	defer stop()

	pool, index, err := openIndex(cfg, nil)
	if err != nil {
		return err
	}
	defer closeQuietly("database", pool.Close)

	return fn(ctx, &faceOps{index: index, out: os.Stdout, json: mustGetBool(cmd, "json")})
}

func runFacesUnlabeled(cmd *cobra.Command, args []string) error {
	limit := mustGetInt(cmd, "limit")
	return withFaceOps(cmd, func(ctx context.Context, o *faceOps) error {
		return o.unlabeled(ctx, limit)
	})
}

func runFacesShow(cmd *cobra.Command, args []string) error {
	if !faces.ValidKey(args[0]) {
		return fmt.Errorf("invalid face key %q", args[0])
	}
	return withFaceOps(cmd, func(ctx context.Context, o *faceOps) error {
		return o.show(ctx, args[0])
	})
}

func runFacesLabel(cmd *cobra.Command, args []string) error {
	if !faces.ValidKey(args[0]) {
		return fmt.Errorf("invalid face key %q", args[0])
	}
	return withFaceOps(cmd, func(ctx context.Context, o *faceOps) error {
		return o.label(ctx, args[0], args[1:])
	})
}

func runFacesFind(cmd *cobra.Command, args []string) error {
	return withFaceOps(cmd, func(ctx context.Context, o *faceOps) error {
		return o.find(ctx, args)
	})
}
