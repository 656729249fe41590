package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tikun-labs/sefirot-cli/internal/model"
	"github.com/tikun-labs/sefirot-cli/internal/report"
	"github.com/tikun-labs/sefirot-cli/internal/resilience"
)

var (
	batchInput       string
	batchConcurrency int
	batchRetryFailed bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run analyses for every scenario in a JSONL file",
	Long:  "Reads one {case_name, scenario} object per line, runs the full pipeline for each with bounded concurrency, and records failed cases to a .failed.jsonl queue for later retry.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initAnalysis(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		orch, err := env.orchestrator()
		if err != nil {
			return err
		}

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.Concurrency
		}

		run := func(ctx context.Context, caseName, scenario string) (*model.PipelineResult, error) {
			result, err := orch.Process(ctx, scenario, caseName)
			if err != nil {
				return nil, err
			}
			if _, err := report.Export(result, cfg.Export.OutputDir, report.FormatJSON); err != nil {
				zap.L().Warn("batch: export failed", zap.String("case", caseName), zap.Error(err))
			}
			if env.Publisher != nil {
				if err := env.Publisher.Publish(ctx, result); err != nil {
					zap.L().Warn("notion publish failed", zap.String("case", caseName), zap.Error(err))
				}
			}
			return result, nil
		}

		dlq := newDLQWriter(dlqPathFor(batchInput))
		defer dlq.close()

		if batchRetryFailed {
			entries, err := readDLQFile(batchInput)
			if err != nil {
				return err
			}
			if err := processRetries(ctx, entries, concurrency, dlq, run); err != nil {
				return err
			}
			if dlq.written() == 0 {
				// Every case recovered; drop the stale queue file.
				if err := os.Remove(batchInput); err != nil && !os.IsNotExist(err) {
					zap.L().Warn("batch: remove retried queue file", zap.Error(err))
				}
			}
			return nil
		}

		items, err := readBatchFile(batchInput)
		if err != nil {
			return err
		}
		return processBatch(ctx, items, concurrency, dlq, run)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "input", "", "JSONL file with one {case_name, scenario} per line (required)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max concurrent analyses (default from config)")
	batchCmd.Flags().BoolVar(&batchRetryFailed, "retry-failed", false, "treat the input as a .failed.jsonl queue and re-run retryable cases")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}

// batchItem is one line of the batch input file.
type batchItem struct {
	CaseName string `json:"case_name"`
	Scenario string `json:"scenario"`
}

// runFunc runs one full analysis.
type runFunc func(ctx context.Context, caseName, scenario string) (*model.PipelineResult, error)

// processBatch runs all items with bounded concurrency. Individual failures
// never abort the batch; they are counted and recorded to the DLQ.
func processBatch(ctx context.Context, items []batchItem, concurrency int, dlq *dlqWriter, run runFunc) error {
	if len(items) == 0 {
		zap.L().Info("batch: no scenarios found")
		return nil
	}

	zap.L().Info("batch: processing scenarios",
		zap.Int("cases", len(items)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, degraded, failed atomic.Int64

	for _, item := range items {
		g.Go(func() error {
			log := zap.L().With(zap.String("case", item.CaseName))

			result, err := run(gctx, item.CaseName, item.Scenario)
			switch {
			case err != nil:
				failed.Add(1)
				log.Error("batch: analysis failed", zap.Error(err))
				recordFailedCase(dlq, resilience.NewDLQEntry(item.CaseName, item.Scenario, "", err), log)
			case result.Metrics.FailedStages > 0:
				degraded.Add(1)
				stage, stageErr := firstFailedStage(result)
				log.Warn("batch: analysis degraded",
					zap.Int("failed_stages", result.Metrics.FailedStages),
					zap.String("first_failed", stage),
				)
				recordFailedCase(dlq, resilience.NewDLQEntry(item.CaseName, item.Scenario, stage, stageErr), log)
			default:
				succeeded.Add(1)
				log.Info("batch: analysis complete",
					zap.Float64("score", result.Metrics.AverageScore),
					zap.String("quality", result.Metrics.PipelineQuality),
				)
			}
			return nil // don't abort batch on individual failure
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch")
	}

	fmt.Printf("Batch complete: %d succeeded, %d degraded, %d failed (of %d)\n",
		succeeded.Load(), degraded.Load(), failed.Load(), len(items))
	if dlq.written() > 0 {
		fmt.Printf("Failed cases recorded: %s\n", dlq.path)
	}
	return nil
}

// processRetries re-runs the retryable entries of a failure queue. Entries
// that fail again get their retry count bumped and are written back; entries
// that are out of retries or permanently failed pass through unchanged.
func processRetries(ctx context.Context, entries []*resilience.DLQEntry, concurrency int, dlq *dlqWriter, run runFunc) error {
	filter := resilience.DLQFilter{RetryableOnly: true}

	var retryable []*resilience.DLQEntry
	var parked []*resilience.DLQEntry
	for _, e := range entries {
		if filter.Matches(e) {
			retryable = append(retryable, e)
		} else {
			parked = append(parked, e)
		}
	}

	if len(retryable) == 0 {
		zap.L().Info("batch: no retryable cases", zap.Int("parked", len(parked)))
		for _, e := range parked {
			recordFailedCase(dlq, e, zap.L())
		}
		return nil
	}

	zap.L().Info("batch: retrying failed cases",
		zap.Int("cases", len(retryable)),
		zap.Int("parked", len(parked)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var recovered, failedAgain atomic.Int64

	for _, entry := range retryable {
		g.Go(func() error {
			log := zap.L().With(
				zap.String("case", entry.CaseName),
				zap.Int("retry", entry.RetryCount+1),
			)

			result, err := run(gctx, entry.CaseName, entry.Scenario)
			if err == nil && result.Metrics.FailedStages == 0 {
				recovered.Add(1)
				log.Info("batch: case recovered")
				return nil
			}

			if err == nil {
				stage, stageErr := firstFailedStage(result)
				entry.FailedStage = stage
				err = stageErr
			}
			failedAgain.Add(1)
			entry.RecordFailure(err)
			log.Warn("batch: case failed again", zap.Error(err))
			recordFailedCase(dlq, entry, log)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch retry")
	}

	for _, e := range parked {
		recordFailedCase(dlq, e, zap.L())
	}

	fmt.Printf("Retry complete: %d recovered, %d failed again, %d parked\n",
		recovered.Load(), failedAgain.Load(), len(parked))
	if dlq.written() > 0 {
		fmt.Printf("Remaining failed cases: %s\n", dlq.path)
	}
	return nil
}

func recordFailedCase(dlq *dlqWriter, entry *resilience.DLQEntry, log *zap.Logger) {
	if err := dlq.add(entry); err != nil {
		log.Warn("batch: record failed case", zap.Error(err))
	}
}

// firstFailedStage returns the first error-status stage of a degraded run.
func firstFailedStage(result *model.PipelineResult) (string, error) {
	for _, r := range result.StageResults {
		if !r.OK() {
			return string(r.StageID), eris.New(r.Error)
		}
	}
	return "", eris.New("stage failure not recorded")
}

// readBatchFile parses the JSONL input. Blank lines are skipped; a line
// without a scenario is an error. Missing case names get a line-numbered
// fallback.
func readBatchFile(path string) ([]batchItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "batch: open input")
	}
	defer f.Close() //nolint:errcheck

	var items []batchItem
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var item batchItem
		if err := json.Unmarshal([]byte(text), &item); err != nil {
			return nil, eris.Wrapf(err, "batch: parse line %d", line)
		}
		if strings.TrimSpace(item.Scenario) == "" {
			return nil, eris.Errorf("batch: line %d has no scenario", line)
		}
		if item.CaseName == "" {
			item.CaseName = fmt.Sprintf("case_%d", line)
		}
		items = append(items, item)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "batch: read input")
	}
	return items, nil
}

// readDLQFile parses a .failed.jsonl queue file.
func readDLQFile(path string) ([]*resilience.DLQEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "batch: open failure queue")
	}
	defer f.Close() //nolint:errcheck

	var entries []*resilience.DLQEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var entry resilience.DLQEntry
		if err := json.Unmarshal([]byte(text), &entry); err != nil {
			return nil, eris.Wrapf(err, "batch: parse queue line %d", line)
		}
		entries = append(entries, &entry)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "batch: read failure queue")
	}
	return entries, nil
}

// dlqPathFor maps an input path to its failure queue path. A queue file
// maps to itself, so retries rewrite the queue in place.
func dlqPathFor(input string) string {
	base := strings.TrimSuffix(input, ".failed.jsonl")
	base = strings.TrimSuffix(base, ".jsonl")
	return base + ".failed.jsonl"
}

// dlqWriter appends failed cases to a .failed.jsonl file, created lazily on
// the first entry so clean batches leave no queue file behind.
type dlqWriter struct {
	path string

	mu    sync.Mutex
	f     *os.File
	count int
}

func newDLQWriter(path string) *dlqWriter {
	return &dlqWriter{path: path}
}

func (w *dlqWriter) add(entry *resilience.DLQEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		f, err := os.Create(w.path)
		if err != nil {
			return eris.Wrap(err, "batch: create failure queue")
		}
		w.f = f
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "batch: marshal queue entry")
	}
	if _, err := w.f.Write(append(data, '\n')); err != nil {
		return eris.Wrap(err, "batch: write queue entry")
	}
	w.count++
	return nil
}

func (w *dlqWriter) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
}

func (w *dlqWriter) written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}
