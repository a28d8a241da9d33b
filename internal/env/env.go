// Package env is the build engine's handle on the host: executable lookup
// with override support, subprocess execution, the cache tree, scratch
// directories and the decider. Builders receive an *Env at construction and
// go through it for every side effect, which is what makes them testable
// without real tools on PATH.
package env

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/docgen/internal/decider"
	"git.home.luguber.info/inful/docgen/internal/logfields"
	"git.home.luguber.info/inful/docgen/internal/metrics"
	"git.home.luguber.info/inful/docgen/internal/workspace"
)

// toolEnvPrefix is the environment variable namespace for tool path
// overrides, e.g. DOCGEN_TOOL_PDFLATEX=/opt/texlive/bin/pdflatex.
const toolEnvPrefix = "DOCGEN_TOOL_"

// Options configures a new Env. Zero values get working defaults.
type Options struct {
	// CacheRoot holds generated media, scratch space and the decider
	// database. Defaults to xdg.CacheHome/docgen.
	CacheRoot string
	// ProjectRoot is searched for .env / .env.local tool overrides.
	ProjectRoot string
	// ToolPaths maps executable names to explicit paths, taking precedence
	// over environment overrides and PATH.
	ToolPaths map[string]string
	// Runner substitutes the subprocess executor. Defaults to ExecRunner.
	Runner Runner
	// Decider substitutes the build decider. Defaults to an in-memory one.
	Decider *decider.Decider
	// Metrics receives tool run observations. Defaults to NoopRecorder.
	Metrics metrics.Recorder
	// LookPath substitutes executable probing, for tests.
	LookPath func(name string) (string, error)
}

type probe struct {
	path string
	err  error
}

// Env is safe for concurrent use by builders.
type Env struct {
	cacheRoot string
	runner    Runner
	dec       *decider.Decider
	recorder  metrics.Recorder
	lookPath  func(string) (string, error)
	toolPaths map[string]string
	fileEnv   map[string]string

	scratchOnce sync.Once
	scratchErr  error
	scratch     *workspace.Manager

	mu    sync.Mutex
	execs map[string]probe
}

// New builds an Env, creating the cache root if needed.
func New(opts Options) (*Env, error) {
	cacheRoot := opts.CacheRoot
	if cacheRoot == "" {
		cacheRoot = filepath.Join(xdg.CacheHome, "docgen")
	}
	if err := os.MkdirAll(cacheRoot, 0o750); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}

	e := &Env{
		cacheRoot: cacheRoot,
		runner:    opts.Runner,
		dec:       opts.Decider,
		recorder:  opts.Metrics,
		lookPath:  opts.LookPath,
		toolPaths: opts.ToolPaths,
		fileEnv:   loadDotEnv(opts.ProjectRoot),
		execs:     make(map[string]probe),
	}
	if e.runner == nil {
		e.runner = ExecRunner{}
	}
	if e.dec == nil {
		e.dec = decider.New(decider.NewMemoryStore())
	}
	if e.recorder == nil {
		e.recorder = metrics.NoopRecorder{}
	}
	if e.lookPath == nil {
		e.lookPath = exec.LookPath
	}
	e.scratch = workspace.NewManager(filepath.Join(cacheRoot, "scratch"))
	return e, nil
}

// loadDotEnv reads .env then .env.local from the project root without
// touching the process environment. Earlier files win per key.
func loadDotEnv(root string) map[string]string {
	if root == "" {
		return nil
	}
	var files []string
	for _, name := range []string{".env", ".env.local"} {
		p := filepath.Join(root, name)
		if _, err := os.Stat(p); err == nil {
			files = append(files, p)
		}
	}
	if len(files) == 0 {
		return nil
	}
	vars, err := godotenv.Read(files...)
	if err != nil {
		slog.Warn("Failed to parse .env file", logfields.Error(err))
		return nil
	}
	return vars
}

// toolEnvKey maps an executable name to its override variable name:
// rsvg-convert becomes DOCGEN_TOOL_RSVG_CONVERT.
func toolEnvKey(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - ('a' - 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
	return toolEnvPrefix + mapped
}

// FindExecutable resolves a tool name to a runnable path. Resolution order:
// explicit ToolPaths, DOCGEN_TOOL_* process environment, .env files, PATH.
// Results, including failures, are cached for the life of the Env.
func (e *Env) FindExecutable(name string) (string, error) {
	e.mu.Lock()
	if p, ok := e.execs[name]; ok {
		e.mu.Unlock()
		return p.path, p.err
	}
	e.mu.Unlock()

	path, err := e.resolveExecutable(name)

	e.mu.Lock()
	e.execs[name] = probe{path: path, err: err}
	e.mu.Unlock()
	return path, err
}

func (e *Env) resolveExecutable(name string) (string, error) {
	if p, ok := e.toolPaths[name]; ok && p != "" {
		return p, nil
	}
	key := toolEnvKey(name)
	if p := os.Getenv(key); p != "" {
		return p, nil
	}
	if p, ok := e.fileEnv[key]; ok && p != "" {
		return p, nil
	}
	p, err := e.lookPath(name)
	if err != nil {
		return "", fmt.Errorf("executable %s not found: %w", name, err)
	}
	return p, nil
}

// RunOpts carries the optional parts of a tool invocation.
type RunOpts struct {
	Dir      string
	ExtraEnv []string
}

// Run resolves argv[0] and executes the command without a shell. A nonzero
// exit shows up in the result, not in the error.
func (e *Env) Run(ctx context.Context, argv []string, opts RunOpts) (RunResult, error) {
	if len(argv) == 0 {
		return RunResult{}, fmt.Errorf("empty command")
	}
	path, err := e.FindExecutable(argv[0])
	if err != nil {
		return RunResult{}, err
	}

	res, err := e.runner.Run(ctx, RunSpec{
		Path:     path,
		Args:     argv[1:],
		Dir:      opts.Dir,
		ExtraEnv: opts.ExtraEnv,
	})
	if err != nil {
		return res, err
	}
	e.recorder.ObserveToolRun(argv[0], res.Duration, res.ReturnCode == 0)
	slog.Debug("Tool run finished",
		logfields.Tool(argv[0]),
		logfields.ReturnCode(res.ReturnCode),
		logfields.DurationMS(float64(res.Duration.Milliseconds())),
	)
	return res, nil
}

// Metrics returns the recorder the engine reports into.
func (e *Env) Metrics() metrics.Recorder { return e.recorder }

// CacheRoot returns the root of the cache tree.
func (e *Env) CacheRoot() string { return e.cacheRoot }

// MediaRoot returns the directory for generated intermediate media. It is
// created on demand by builders via EnsureDir.
func (e *Env) MediaRoot() string { return filepath.Join(e.cacheRoot, "media") }

// Decider returns the engine's build decider.
func (e *Env) Decider() *decider.Decider { return e.dec }

// ScratchDir allocates a private working directory for one builder run.
func (e *Env) ScratchDir(label string) (string, error) {
	e.scratchOnce.Do(func() {
		e.scratchErr = e.scratch.Create()
	})
	if e.scratchErr != nil {
		return "", fmt.Errorf("create scratch workspace: %w", e.scratchErr)
	}
	return e.scratch.NextScratch(label)
}

// Cleanup removes scratch space. Failures are logged, never fatal.
func (e *Env) Cleanup() {
	if err := e.scratch.Cleanup(); err != nil {
		slog.Warn("Scratch cleanup failed", logfields.Error(err))
	}
}

// EnsureDir creates dir and parents if missing.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}
