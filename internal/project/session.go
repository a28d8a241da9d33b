package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/docgen/internal/env"
)

// Session outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomePartial  = "partial"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
)

// TargetOutcome records one document-target build in the session manifest.
type TargetOutcome struct {
	Document   string  `json:"document"`
	Target     string  `json:"target"`
	Status     string  `json:"status"`
	Output     string  `json:"output,omitempty"`
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"duration_ms"`
}

// ok reports whether the outcome is a successful build.
func (o TargetOutcome) ok() bool { return o.Status == "done" }

// Manifest is the durable record of one render session, written to the
// cache directory when the session finishes.
type Manifest struct {
	SessionID  string          `json:"session_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Outcome    string          `json:"outcome"`
	Provenance Provenance      `json:"provenance"`
	Targets    []TargetOutcome `json:"targets"`
}

// Built counts successful target builds.
func (m *Manifest) Built() int {
	n := 0
	for _, o := range m.Targets {
		if o.ok() {
			n++
		}
	}
	return n
}

// Failed counts unsuccessful target builds.
func (m *Manifest) Failed() int { return len(m.Targets) - m.Built() }

// deriveOutcome classifies the session from its target outcomes. canceled
// overrides when the context was canceled before the session finished.
func (m *Manifest) deriveOutcome(canceled bool) string {
	switch {
	case canceled:
		return OutcomeCanceled
	case m.Failed() == 0:
		return OutcomeSuccess
	case m.Built() > 0:
		return OutcomePartial
	default:
		return OutcomeFailed
	}
}

// WriteManifest stores the manifest under dir as <session_id>.json and
// returns the written path.
func WriteManifest(dir string, m *Manifest) (string, error) {
	if err := env.EnsureDir(dir); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal session manifest: %w", err)
	}
	path := filepath.Join(dir, m.SessionID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write session manifest: %w", err)
	}
	return path, nil
}
