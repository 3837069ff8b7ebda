package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-index/internal/config"
	"github.com/kozaktomas/face-index/internal/constants"
	"github.com/kozaktomas/face-index/internal/database"
	"github.com/kozaktomas/face-index/internal/faces"
	"github.com/kozaktomas/face-index/internal/storage"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "Find stored face crops that have no index row",
	Long: `Scan the faces bucket for crops without an index row.

Crops are written before their index row, so a crash or an index outage
between the two steps leaves an unindexed crop behind. This command lists
those crops and can delete them.

Crops younger than --min-age are skipped: a running crop worker may not
have written their index row yet, and deleting them would leave a row
pointing at a missing crop.

Examples:
  # List orphans
  face-index orphans

  # Delete them
  face-index orphans --delete

  # Only consider crops older than a day
  face-index orphans --min-age 24h

  # JSON output for scripting
  face-index orphans --json`,
	RunE: runOrphans,
}

func init() {
	rootCmd.AddCommand(orphansCmd)

	orphansCmd.Flags().Bool("delete", false, "Delete orphaned crops")
	orphansCmd.Flags().Int("concurrency", constants.DefaultConcurrency, "Number of parallel index lookups")
	orphansCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
	orphansCmd.Flags().Duration("min-age", constants.DefaultOrphanMinAge, "Skip crops written more recently than this")
}

// OrphansResult represents the result of an orphan scan
type OrphansResult struct {
	Scanned       int      `json:"scanned"`
	SkippedRecent int      `json:"skipped_recent"`
	Orphans       []string `json:"orphans"`
	Deleted       int      `json:"deleted"`
	Errors        int      `json:"errors"`
	DurationMs    int64    `json:"duration_ms"`
	DurationHuman string   `json:"duration_human,omitempty"`
}

// objectStore is the part of storage.Bucket the scan needs.
type objectStore interface {
	Walk(ctx context.Context, prefix string, fn func(obj storage.Object) error) error
	Delete(ctx context.Context, key string) error
}

var _ objectStore = (*storage.Bucket)(nil)

type orphanScan struct {
	store       objectStore
	index       database.FaceReader
	concurrency int
	delete      bool
	minAge      time.Duration
	now         func() time.Time
	onProgress  func()

	skipped int
}

// listKeys returns every well-formed crop key in the store that is at least
// minAge old.
func (s *orphanScan) listKeys(ctx context.Context) ([]string, error) {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	cutoff := now().Add(-s.minAge)

	var keys []string
	s.skipped = 0
	err := s.store.Walk(ctx, constants.FaceKeyPrefix, func(obj storage.Object) error {
		if !faces.ValidKey(obj.Key) {
			return nil
		}
		if obj.ModTime.After(cutoff) {
			s.skipped++
			return nil
		}
		keys = append(keys, obj.Key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing crops: %w", err)
	}
	return keys, nil
}

func (s *orphanScan) check(ctx context.Context, keys []string) OrphansResult {
	result := OrphansResult{Scanned: len(keys), SkippedRecent: s.skipped, Orphans: []string{}}
	var mu sync.Mutex
	sem := make(chan struct{}, max(1, s.concurrency))
	var wg sync.WaitGroup

	for _, key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if s.onProgress != nil {
				defer s.onProgress()
			}

			_, err := s.index.Get(ctx, key)
			if err == nil {
				return
			}
			if !errors.Is(err, faces.ErrNotFound) {
				mu.Lock()
				result.Errors++
				mu.Unlock()
				return
			}

			deleted := false
			if s.delete {
				if err := s.store.Delete(ctx, key); err != nil {
					mu.Lock()
					result.Errors++
					mu.Unlock()
				} else {
					deleted = true
				}
			}

			mu.Lock()
			result.Orphans = append(result.Orphans, key)
			if deleted {
				result.Deleted++
			}
			mu.Unlock()
		}(key)
	}
	wg.Wait()

	sort.Strings(result.Orphans)
	return result
}

func runOrphans(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	cfg := config.Load()
	ctx, stop := signalContext()
	defer stop()
	startTime := time.Now()

	pool, index, err := openIndex(cfg, nil)
	if err != nil {
		return err
	}
	defer closeQuietly("database", pool.Close)

	crops, err := openFacesBucket(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeQuietly("faces bucket", crops.Close)

	scan := &orphanScan{
		store:       crops,
		index:       index,
		concurrency: mustGetInt(cmd, "concurrency"),
		delete:      mustGetBool(cmd, "delete"),
		minAge:      mustGetDuration(cmd, "min-age"),
	}
	if scan.minAge < 0 {
		return errors.New("--min-age must not be negative")
	}

	if !jsonOutput {
		fmt.Println("Listing face crops...")
	}
	keys, err := scan.listKeys(ctx)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput && len(keys) > 0 {
		bar = progressbar.NewOptions(len(keys),
			progressbar.OptionSetDescription("Checking crops"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("crops"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
		scan.onProgress = func() { _ = bar.Add(1) }
	}

	result := scan.check(ctx, keys)
	duration := time.Since(startTime)
	result.DurationMs = duration.Milliseconds()

	if jsonOutput {
		return outputJSON(result)
	}
	if bar != nil {
		fmt.Println()
	}

	result.DurationHuman = formatDuration(duration)
	for _, key := range result.Orphans {
		fmt.Println(key)
	}
	fmt.Println("\nScan complete!")
	fmt.Printf("  Crops scanned: %d\n", result.Scanned)
	fmt.Printf("  Too recent:    %d\n", result.SkippedRecent)
	fmt.Printf("  Orphans:       %d\n", len(result.Orphans))
	if scan.delete {
		fmt.Printf("  Deleted:       %d\n", result.Deleted)
	}
	if result.Errors > 0 {
		fmt.Printf("  Errors:        %d\n", result.Errors)
	}
	fmt.Printf("  Duration:      %s\n", result.DurationHuman)
	return nil
}
