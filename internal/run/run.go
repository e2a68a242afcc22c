// Package run drives one upload run from validation through per-item
// uploads to result persistence. A run moves through a linear lifecycle:
//
//	idle → validating → running → completed | cancelled | failed.
//
// Uploads within one run are sequential, so outcome order equals
// enumeration order and pressure on the remote API stays bounded.
package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"hamup/internal/creds"
	"hamup/internal/hamster"
	"hamup/internal/result"
	"hamup/internal/scan"
)

// State is the lifecycle state of a run. Terminal states are final; a new
// run requires a fresh Runner.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateCancelled  State = "cancelled"
	StateFailed     State = "failed"
)

const (
	// uploadInterval spaces out requests against the remote API; the burst
	// lets short batches run without waiting.
	uploadInterval = 500 * time.Millisecond
	uploadBurst    = 3
)

// ErrRunnerUsed is returned when Run is called on a runner that already
// reached a terminal state.
var ErrRunnerUsed = errors.New("runner already ran; construct a new one")

// ErrUnresolvedConflict is returned when an existing result file needs a
// Skip/Overwrite decision and no decider is available to make one.
var ErrUnresolvedConflict = errors.New("existing result file conflict left unresolved")

// CredentialSource supplies the credentials for a run.
type CredentialSource interface {
	Resolve(creds.Overrides) (creds.Credentials, error)
}

// Event is the incremental progress signal emitted once per dispatched
// file, in enumeration order.
type Event struct {
	Index   int // 1-based
	Total   int
	Outcome result.Outcome
}

// Decider resolves an existing result file conflict. It must return
// PolicySkip or PolicyOverwrite; anything else leaves the conflict
// unresolved and fails the run.
type Decider func(conflictPath string) result.Policy

// Options configures one run.
type Options struct {
	// Paths holds the selected targets: explicitly selected files in single
	// mode, exactly one folder in group mode.
	Paths  []string
	Mode   scan.Mode
	Policy result.Policy
	// Overrides take precedence over stored credentials, per field.
	Overrides creds.Overrides
	// OnProgress, if set, receives one event per dispatched file.
	OnProgress func(Event)
	// Decide resolves result-file conflicts when Policy is ask.
	Decide Decider
}

// Summary describes the terminal outcome of a run. Collected outcomes are
// included even when the run failed, so callers can show what succeeded
// before the failure.
type Summary struct {
	RunID     string
	State     State
	Attempted int
	Succeeded int
	Failed    int
	// SkippedUnits counts units left untouched by a Skip decision. They are
	// not failures.
	SkippedUnits int
	Cancelled    bool
	Outcomes     []result.Outcome
	RecordPaths  []string
}

// unit is one record-granularity piece of work: a file in single mode, the
// whole folder in group mode.
type unit struct {
	source     string
	files      []string
	recordPath string
	skipped    bool
	// preErr marks a single-mode entry that failed validation; it produces
	// a failed outcome without a network call.
	preErr *result.ErrorRecord
}

// Runner owns the transient state of one run. It is driven by a single
// goroutine; only Cancel and State are safe to call from others.
type Runner struct {
	source   CredentialSource
	uploader Uploader
	limiter  *rate.Limiter
	opts     Options

	runID     string
	mu        sync.RWMutex
	state     State
	cancelled atomic.Bool
}

func NewRunner(source CredentialSource, uploader Uploader, opts Options) *Runner {
	return &Runner{
		source:   source,
		uploader: uploader,
		limiter:  rate.NewLimiter(rate.Every(uploadInterval), uploadBurst),
		opts:     opts,
		runID:    uuid.New().String(),
		state:    StateIdle,
	}
}

// RunID identifies this run in logs and records.
func (r *Runner) RunID() string { return r.runID }

// State returns the current lifecycle state.
func (r *Runner) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Cancel requests that no new upload is started. An upload already in
// flight is allowed to finish; the flag is observed at loop boundaries.
func (r *Runner) Cancel() {
	r.cancelled.Store(true)
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	logger.Info("run state changed",
		slog.String("run_id", r.runID),
		slog.String("state", string(s)))
}

func (r *Runner) stopRequested(ctx context.Context) bool {
	return r.cancelled.Load() || ctx.Err() != nil
}

// Run executes the run to a terminal state and returns its summary. The
// summary is returned alongside the error on failure, carrying whatever
// outcomes were collected before the failure. Cancellation is not an error.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	if r.State() != StateIdle {
		return nil, ErrRunnerUsed
	}
	summary := &Summary{RunID: r.runID, State: StateFailed}

	fail := func(err error) (*Summary, error) {
		r.setState(StateFailed)
		summary.State = StateFailed
		logger.Error("run failed",
			slog.String("run_id", r.runID),
			slog.String("error", err.Error()))
		return summary, err
	}

	r.setState(StateValidating)

	credentials, err := r.source.Resolve(r.opts.Overrides)
	if err != nil {
		return fail(fmt.Errorf("failed to resolve credentials: %w", err))
	}

	units, err := r.buildUnits()
	if err != nil {
		return fail(err)
	}
	if err := r.resolveConflicts(units, summary); err != nil {
		return fail(err)
	}

	r.setState(StateRunning)

	total := 0
	for _, u := range units {
		if !u.skipped {
			total += len(u.files)
		}
	}
	logger.Info("starting uploads",
		slog.String("run_id", r.runID),
		slog.String("mode", string(r.opts.Mode)),
		slog.Int("total", total),
		slog.Int("skipped_units", summary.SkippedUnits))

	index := 0
	for _, u := range units {
		if u.skipped {
			continue
		}

		var outcomes []result.Outcome
		for _, file := range u.files {
			// Cancellation is observed here, before dispatching; an upload
			// already in flight is never aborted mid-transfer.
			if r.stopRequested(ctx) {
				summary.Cancelled = true
				break
			}
			if u.preErr == nil {
				if err := r.limiter.Wait(ctx); err != nil {
					// Only context cancellation gets us here; the item was
					// never dispatched, so it produces no outcome.
					summary.Cancelled = true
					break
				}
				// A cancel that landed while the wait was pending stops
				// this item from dispatching.
				if r.stopRequested(ctx) {
					summary.Cancelled = true
					break
				}
			}

			index++
			outcome := r.uploadOne(ctx, file, u, credentials)
			outcomes = append(outcomes, outcome)
			summary.Outcomes = append(summary.Outcomes, outcome)
			summary.Attempted++
			if outcome.Success {
				summary.Succeeded++
			} else {
				summary.Failed++
			}

			if r.opts.OnProgress != nil {
				r.opts.OnProgress(Event{Index: index, Total: total, Outcome: outcome})
			}
		}

		// Single mode writes one record per file as soon as its outcome is
		// known, so one file's fate never blocks another's record. Group
		// mode aggregates below.
		if r.opts.Mode == scan.ModeSingle && len(outcomes) > 0 {
			rec := r.newRecord(u.source, credentials.AlbumID, outcomes, nil)
			if _, err := result.Write(rec, u.recordPath, result.PolicyOverwrite); err != nil {
				return fail(fmt.Errorf("failed to persist result record: %w", err))
			}
			summary.RecordPaths = append(summary.RecordPaths, u.recordPath)
			logger.Info("wrote result record",
				slog.String("run_id", r.runID),
				slog.String("path", u.recordPath))
		}

		if summary.Cancelled {
			break
		}
	}

	if r.opts.Mode == scan.ModeGroup {
		u := units[0]
		if !u.skipped {
			rec := r.newRecord(u.source, credentials.AlbumID, summary.Outcomes, &result.Summary{
				Attempted: summary.Attempted,
				Succeeded: summary.Succeeded,
				Failed:    summary.Failed,
				Cancelled: summary.Cancelled,
			})
			if _, err := result.Write(rec, u.recordPath, result.PolicyOverwrite); err != nil {
				return fail(fmt.Errorf("failed to persist result record: %w", err))
			}
			summary.RecordPaths = append(summary.RecordPaths, u.recordPath)
			logger.Info("wrote result record",
				slog.String("run_id", r.runID),
				slog.String("path", u.recordPath))
		}
	}

	if summary.Cancelled {
		r.setState(StateCancelled)
		summary.State = StateCancelled
	} else {
		r.setState(StateCompleted)
		summary.State = StateCompleted
	}
	return summary, nil
}

// buildUnits expands the selected paths into units of work. Group mode
// fails the run on any enumeration error; single mode converts per-entry
// validation failures into pre-failed units so the other entries proceed.
func (r *Runner) buildUnits() ([]*unit, error) {
	switch r.opts.Mode {
	case scan.ModeGroup:
		if len(r.opts.Paths) != 1 {
			return nil, fmt.Errorf("group mode wants exactly one folder, got %d paths", len(r.opts.Paths))
		}
		folder := r.opts.Paths[0]
		files, err := scan.Enumerate(folder, scan.ModeGroup)
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate %s: %w", folder, err)
		}
		return []*unit{{
			source:     folder,
			files:      files,
			recordPath: result.GroupPath(folder),
		}}, nil

	case scan.ModeSingle:
		if len(r.opts.Paths) == 0 {
			return nil, errors.New("single mode wants at least one file")
		}
		units := make([]*unit, 0, len(r.opts.Paths))
		for _, path := range r.opts.Paths {
			u := &unit{
				source:     path,
				files:      []string{path},
				recordPath: result.SinglePath(path),
			}
			if _, err := scan.Enumerate(path, scan.ModeSingle); err != nil {
				kind := "enumeration"
				if errors.Is(err, scan.ErrInvalidFileType) {
					kind = "invalid_file_type"
				}
				u.preErr = &result.ErrorRecord{Kind: kind, Message: err.Error()}
				logger.Error("target failed validation",
					slog.String("run_id", r.runID),
					slog.String("path", path),
					slog.String("error", err.Error()))
			}
			units = append(units, u)
		}
		return units, nil
	}

	return nil, fmt.Errorf("unknown upload mode %q", r.opts.Mode)
}

// resolveConflicts applies the existing-file policy to every unit before any
// upload starts, so a Skip decision costs no network traffic.
func (r *Runner) resolveConflicts(units []*unit, summary *Summary) error {
	for _, u := range units {
		exists, err := result.Exists(u.recordPath)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}

		policy := r.opts.Policy
		if policy == result.PolicyAsk || policy == "" {
			if r.opts.Decide == nil {
				return fmt.Errorf("%w: %s", ErrUnresolvedConflict, u.recordPath)
			}
			policy = r.opts.Decide(u.recordPath)
		}

		switch policy {
		case result.PolicySkip:
			u.skipped = true
			summary.SkippedUnits++
			logger.Info("skipping unit, keeping existing result file",
				slog.String("run_id", r.runID),
				slog.String("path", u.recordPath))
		case result.PolicyOverwrite:
			// Overwrite happens at write time; nothing to do now.
		default:
			return fmt.Errorf("%w: %s", ErrUnresolvedConflict, u.recordPath)
		}
	}
	return nil
}

// uploadOne produces the outcome for a single file: a pre-failed outcome
// for entries that failed validation, otherwise one upload.
func (r *Runner) uploadOne(ctx context.Context, file string, u *unit, credentials creds.Credentials) result.Outcome {
	outcome := result.Outcome{
		File:      filepath.Base(file),
		Timestamp: time.Now().UTC(),
	}

	if u.preErr != nil {
		outcome.Error = u.preErr
		return outcome
	}

	base := filepath.Base(file)
	title := strings.TrimSuffix(base, filepath.Ext(base)) + "_" + string(r.opts.Mode)

	logger.Info("uploading",
		slog.String("run_id", r.runID),
		slog.String("file", base))

	res, err := r.uploader.Upload(ctx, file, hamster.UploadOptions{
		APIKey:  credentials.APIKey,
		AlbumID: credentials.AlbumID,
		Title:   title,
		NSFW:    true,
	})
	if err != nil {
		outcome.Error = errorRecord(err)
		logger.Error("upload failed",
			slog.String("run_id", r.runID),
			slog.String("file", base),
			slog.String("kind", outcome.Error.Kind),
			slog.String("error", outcome.Error.Message))
		return outcome
	}

	outcome.Success = true
	outcome.URL = res.DirectURL
	outcome.ViewerURL = res.ViewerURL
	outcome.ThumbURL = res.ThumbURL
	outcome.DeleteURL = res.DeleteURL
	outcome.UploadedGMT = res.UploadedGMT
	if missing := res.MissingFields(); len(missing) > 0 {
		logger.Warn("response missing expected fields",
			slog.String("run_id", r.runID),
			slog.String("file", base),
			slog.Any("fields", missing))
	}
	logger.Info("uploaded",
		slog.String("run_id", r.runID),
		slog.String("file", base),
		slog.String("url", res.DirectURL))
	return outcome
}

func (r *Runner) newRecord(source, albumID string, outcomes []result.Outcome, groupSummary *result.Summary) *result.Record {
	if outcomes == nil {
		outcomes = []result.Outcome{} // Serialize an empty list, not null.
	}
	return &result.Record{
		RunID:     r.runID,
		Source:    source,
		Mode:      string(r.opts.Mode),
		AlbumID:   albumID,
		Timestamp: time.Now().UTC(),
		Outcomes:  outcomes,
		Summary:   groupSummary,
	}
}

// errorRecord converts an upload failure into its persisted form.
func errorRecord(err error) *result.ErrorRecord {
	var uploadErr *hamster.UploadError
	if errors.As(err, &uploadErr) {
		return &result.ErrorRecord{Kind: string(uploadErr.Kind), Message: uploadErr.Message}
	}
	return &result.ErrorRecord{Kind: string(hamster.KindUnknown), Message: err.Error()}
}
