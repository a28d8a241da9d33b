package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"git.home.luguber.info/inful/docgen/internal/logfields"
)

// Manager hands out scratch directories for builders that need a private
// working directory (latex runs, multi-step conversions). Ephemeral mode
// allocates a timestamped session directory that Cleanup removes; persistent
// mode reuses a fixed directory across sessions.
type Manager struct {
	baseDir    string
	sessionDir string
	persistent bool

	mu   sync.Mutex
	next int
}

// NewManager creates a manager with an ephemeral timestamped session directory.
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{
		baseDir:    baseDir,
		persistent: false,
	}
}

// NewPersistentManager creates a manager whose session directory is fixed
// (baseDir/subdirName) and survives Cleanup.
func NewPersistentManager(baseDir, subdirName string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if subdirName == "" {
		subdirName = "working"
	}
	return &Manager{
		baseDir:    baseDir,
		sessionDir: filepath.Join(baseDir, subdirName),
		persistent: true,
	}
}

// Create establishes the session directory. Ephemeral managers allocate a
// timestamped directory; persistent managers ensure the fixed one exists.
func (m *Manager) Create() error {
	if m.persistent {
		if err := os.MkdirAll(m.sessionDir, 0o750); err != nil {
			return fmt.Errorf("failed to create persistent scratch directory: %w", err)
		}
		slog.Debug("Using persistent scratch directory", logfields.Path(m.sessionDir))
		return nil
	}

	timestamp := time.Now().Format("20060102-150405")
	sessionDir := filepath.Join(m.baseDir, fmt.Sprintf("docgen-%s", timestamp))

	if err := os.MkdirAll(sessionDir, 0o750); err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}

	m.sessionDir = sessionDir
	slog.Debug("Created scratch directory", logfields.Path(sessionDir))
	return nil
}

// Path returns the session directory.
func (m *Manager) Path() string {
	return m.sessionDir
}

// NextScratch allocates a fresh uniquely numbered subdirectory. Safe for
// concurrent builders.
func (m *Manager) NextScratch(label string) (string, error) {
	if m.sessionDir == "" {
		return "", fmt.Errorf("scratch workspace not created")
	}

	m.mu.Lock()
	n := m.next
	m.next++
	m.mu.Unlock()

	if label == "" {
		label = "scratch"
	}
	dir := filepath.Join(m.sessionDir, fmt.Sprintf("%s-%04d", label, n))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create scratch subdirectory: %w", err)
	}
	return dir, nil
}

// CreateSubdir creates a named subdirectory within the session directory.
func (m *Manager) CreateSubdir(name string) (string, error) {
	if m.sessionDir == "" {
		return "", fmt.Errorf("scratch workspace not created")
	}

	subdir := filepath.Join(m.sessionDir, name)
	if err := os.MkdirAll(subdir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create subdirectory: %w", err)
	}

	return subdir, nil
}

// Cleanup removes the session directory. Persistent managers keep theirs.
// Callers treat a failed cleanup as a warning, never a build failure.
func (m *Manager) Cleanup() error {
	if m.sessionDir == "" {
		return nil
	}

	if m.persistent {
		slog.Debug("Skipping cleanup for persistent scratch directory", logfields.Path(m.sessionDir))
		return nil
	}

	if err := os.RemoveAll(m.sessionDir); err != nil {
		return fmt.Errorf("failed to cleanup scratch directory: %w", err)
	}

	slog.Debug("Cleaned up scratch directory", logfields.Path(m.sessionDir))
	m.sessionDir = ""
	return nil
}
