package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/docgen/internal/errors"
	"git.home.luguber.info/inful/docgen/internal/events"
	"git.home.luguber.info/inful/docgen/internal/metrics"
	"git.home.luguber.info/inful/docgen/internal/project"
	"git.home.luguber.info/inful/docgen/internal/version"
	"git.home.luguber.info/inful/docgen/internal/watch"
)

var CLI struct {
	Project string           `short:"C" help:"Project root directory" default:"." type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `help:"Print version and exit"`

	Render struct {
		Docs    []string `arg:"" optional:"" help:"Documents to render, relative to the source dir; all when empty"`
		Targets []string `short:"t" help:"Override configured targets (html, tex, pdf)"`
		Jobs    int      `short:"j" help:"Max documents rendered concurrently (0 uses config)"`
	} `cmd:"" help:"Render documents to their configured targets"`

	Setup struct {
		Force bool `help:"Overwrite an existing configuration file"`
	} `cmd:"" help:"Write a starter docgen.yaml"`

	Watch struct {
		Targets      []string      `short:"t" help:"Override configured targets"`
		Debounce     time.Duration `help:"Quiet period after a change before rebuilding" default:"500ms"`
		RebuildEvery time.Duration `help:"Periodic full rebuild interval (0 disables)"`
		MetricsAddr  string        `help:"Serve Prometheus metrics on this address"`
	} `cmd:"" help:"Re-render whenever sources change"`

	Tools struct{} `cmd:"" help:"List converters and tool availability on this host"`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("docgen"),
		kong.Description("Document build engine: converts media and drives per-target render pipelines."),
		kong.Vars{"version": version.String()},
	)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	var err error
	switch ctx.Command() {
	case "render", "render <docs>":
		err = runRender(CLI.Project, CLI.Render.Docs, CLI.Render.Targets, CLI.Render.Jobs)
	case "setup":
		err = runSetup(CLI.Project, CLI.Setup.Force)
	case "watch":
		err = runWatch(CLI.Project)
	case "tools":
		err = runTools(CLI.Project)
	default:
		err = fmt.Errorf("unknown command: %s", ctx.Command())
	}

	adapter := errors.NewCLIErrorAdapter(CLI.Verbose, nil)
	adapter.HandleError(err)
}

func runRender(root string, docs, targets []string, jobs int) error {
	cfg, err := project.LoadConfig(filepath.Join(root, project.DefaultConfigName))
	if err != nil {
		return err
	}
	if jobs > 0 {
		cfg.Concurrency = jobs
	}

	sink, err := buildSink(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()

	p, err := project.Open(root, project.Options{Config: cfg, Sink: sink})
	if err != nil {
		return err
	}
	defer p.Env().Cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := p.Render(ctx, project.RenderRequest{Docs: docs, Targets: targets})
	if err != nil {
		return err
	}
	slog.Info("Render complete",
		"built", result.Manifest.Built(),
		"manifest", result.ManifestPath)
	return nil
}

func runSetup(root string, force bool) error {
	path := filepath.Join(root, project.DefaultConfigName)
	if err := project.InitConfig(path, force); err != nil {
		return err
	}
	slog.Info("Configuration written", "path", path)
	return nil
}

func runWatch(root string) error {
	cfg, err := project.LoadConfig(filepath.Join(root, project.DefaultConfigName))
	if err != nil {
		return err
	}

	sink, err := buildSink(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()

	var rec metrics.Recorder
	var reg *prom.Registry
	if CLI.Watch.MetricsAddr != "" {
		reg = prom.NewRegistry()
		rec = metrics.NewPrometheusRecorder(reg)
	}

	p, err := project.Open(root, project.Options{Config: cfg, Sink: sink, Metrics: rec})
	if err != nil {
		return err
	}
	defer p.Env().Cleanup()

	w, err := watch.New(p, watch.Options{
		Debounce:        CLI.Watch.Debounce,
		RebuildEvery:    CLI.Watch.RebuildEvery,
		MetricsAddr:     CLI.Watch.MetricsAddr,
		MetricsRegistry: reg,
		Targets:         CLI.Watch.Targets,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return w.Run(ctx)
}

func runTools(root string) error {
	cfg, err := loadConfigOrDefault(root)
	if err != nil {
		return err
	}
	p, err := project.Open(root, project.Options{Config: cfg})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "CONVERTER\tFROM\tTO\tORDER\tTOOLS")
	for _, d := range p.Registry().Descriptors() {
		tools := make([]string, 0, len(d.RequiredExecs))
		for _, exec := range d.RequiredExecs {
			if _, err := p.Env().FindExecutable(exec); err != nil {
				tools = append(tools, exec+" (missing)")
			} else {
				tools = append(tools, exec)
			}
		}
		label := "built-in"
		if len(tools) > 0 {
			label = strings.Join(tools, ", ")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			d.Name,
			strings.Join(d.FromFormats, " "),
			strings.Join(d.ToFormats, " "),
			d.Order,
			label)
	}
	return w.Flush()
}

// loadConfigOrDefault falls back to the built-in defaults when no project
// config exists. Listing tools should work outside any project.
func loadConfigOrDefault(root string) (*project.Config, error) {
	path := filepath.Join(root, project.DefaultConfigName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &project.Config{}, nil
	}
	return project.LoadConfig(path)
}

func buildSink(cfg *project.Config) (events.Sink, error) {
	if cfg.Events.URL == "" {
		return events.NoopSink{}, nil
	}
	sink, err := events.NewNATSSink(cfg.Events.URL, cfg.Events.Subject)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryEvents, errors.SeverityFatal, "connect event sink")
	}
	return sink, nil
}
