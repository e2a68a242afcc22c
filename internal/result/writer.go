// Package result persists one structured JSON record per unit of work: one
// record per source file in single mode, one aggregate record per folder in
// group mode. Records land next to their source so a batch is replayable
// from the folder alone.
package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Policy decides what to do when the result file already exists.
type Policy string

const (
	// PolicyAsk defers the decision to the caller via a NeedsDecision
	// outcome; nothing is written.
	PolicyAsk       Policy = "ask"
	PolicySkip      Policy = "skip"
	PolicyOverwrite Policy = "overwrite"
)

// ParsePolicy validates a policy string from flags.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyAsk, PolicySkip, PolicyOverwrite:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown existing-file policy %q (want %q, %q or %q)", s, PolicyAsk, PolicySkip, PolicyOverwrite)
}

// ErrorRecord is the machine-readable failure attached to an outcome.
type ErrorRecord struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Outcome is the per-file result of one upload attempt. One is produced for
// every dispatched file, failures included.
type Outcome struct {
	File        string       `json:"file"`
	Success     bool         `json:"success"`
	URL         string       `json:"url,omitempty"`
	ViewerURL   string       `json:"viewer_url,omitempty"`
	ThumbURL    string       `json:"thumb_url,omitempty"`
	DeleteURL   string       `json:"delete_url,omitempty"`
	UploadedGMT string       `json:"uploaded_gmt,omitempty"`
	Error       *ErrorRecord `json:"error,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Summary aggregates a group record. Cancelled marks partial batches so
// progress is never silently lost.
type Summary struct {
	Attempted int  `json:"attempted"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Cancelled bool `json:"cancelled"`
}

// Record is the persisted unit of work.
type Record struct {
	RunID     string    `json:"run_id,omitempty"`
	Source    string    `json:"source"`
	Mode      string    `json:"mode"`
	AlbumID   string    `json:"album_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Outcomes  []Outcome `json:"outcomes"`
	Summary   *Summary  `json:"summary,omitempty"`
}

// WriteStatus reports how a write request was resolved.
type WriteStatus string

const (
	StatusWritten       WriteStatus = "written"
	StatusSkipped       WriteStatus = "skipped"
	StatusNeedsDecision WriteStatus = "needs_decision"
)

// WriteOutcome carries the resolution and the target path, so callers can
// surface the conflict path when a decision is needed.
type WriteOutcome struct {
	Status WriteStatus
	Path   string
}

// SinglePath returns the record path for one source file: a sibling
// "<stem>_hamup.txt".
func SinglePath(sourceFile string) string {
	base := filepath.Base(sourceFile)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(sourceFile), stem+"_hamup.txt")
}

// GroupPath returns the aggregate record path inside the folder:
// "<folder>/<base>_hamup_results.txt".
func GroupPath(folder string) string {
	base := filepath.Base(filepath.Clean(folder))
	return filepath.Join(folder, base+"_hamup_results.txt")
}

// Exists reports whether a record file is already present at path.
func Exists(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check result file %s: %w", path, err)
	}
	return true, nil
}

// Write persists rec at path according to policy. With PolicyAsk and an
// existing file it returns a NeedsDecision outcome and writes nothing; the
// caller must re-invoke with an explicit policy. PolicySkip leaves existing
// content untouched, PolicyOverwrite replaces it in full.
func Write(rec *Record, path string, policy Policy) (WriteOutcome, error) {
	exists, err := Exists(path)
	if err != nil {
		return WriteOutcome{}, err
	}
	if exists {
		switch policy {
		case PolicyAsk:
			return WriteOutcome{Status: StatusNeedsDecision, Path: path}, nil
		case PolicySkip:
			return WriteOutcome{Status: StatusSkipped, Path: path}, nil
		case PolicyOverwrite:
		default:
			// Overwriting must be asked for explicitly; an unrecognized
			// policy never destroys an existing record.
			return WriteOutcome{}, fmt.Errorf("unknown existing-file policy %q for %s", policy, path)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return WriteOutcome{}, fmt.Errorf("failed to open result file %s for writing: %w", path, err)
	}
	defer f.Close()
	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(rec); err != nil {
		return WriteOutcome{}, fmt.Errorf("failed to encode result record to %s: %w", path, err)
	}
	return WriteOutcome{Status: StatusWritten, Path: path}, nil
}
