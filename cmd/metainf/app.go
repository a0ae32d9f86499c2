package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/c360studio/metainf/config"
	"github.com/c360studio/metainf/diag"
	"github.com/c360studio/metainf/metrics"
	"github.com/c360studio/metainf/notify"
	"github.com/c360studio/metainf/processor"
	"github.com/c360studio/metainf/registry"
	"github.com/c360studio/metainf/scanner"
	"github.com/c360studio/metainf/storage"
)

// finalizeTimeout bounds the deferred write after a watch is interrupted.
const finalizeTimeout = 10 * time.Second

// ErrNoRegistrations is returned by Show when a contract has no entries.
var ErrNoRegistrations = errors.New("no registrations")

// App wires configuration to the scanner, processor and outputs.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer

	source   *scanner.Source
	store    *registry.Store
	metrics  *metrics.Metrics
	notifier notify.Notifier

	// recorder counts diagnostics so the CLI can fail on errors
	recorder *diag.Recorder
	sink     diag.Sink
}

// NewApp creates an application from a validated configuration. The NATS
// connection is opened here when a URL is configured.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	source, err := scanner.NewSource(scanner.SourceConfig{
		Base:      cfg.Source.Base,
		Paths:     cfg.Source.Paths,
		Languages: cfg.Source.Languages,
		Excludes:  cfg.Source.Excludes,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create source: %w", err)
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.NATSURL != "" {
		nn, err := notify.Connect(ctx, cfg.Notify.NATSURL, cfg.Notify.Subject, logger)
		if err != nil {
			return nil, err
		}
		notifier = nn
	}

	recorder := diag.NewRecorder()
	return &App{
		cfg:      cfg,
		logger:   logger,
		stdout:   stdout,
		source:   source,
		store:    registry.NewStore(storage.NewOSStore(cfg.OutputRoot()), cfg.Output.Prefix),
		metrics:  metrics.New(),
		notifier: notifier,
		recorder: recorder,
		sink:     diag.Multi{diag.NewLogSink(logger), recorder},
	}, nil
}

// Close releases the notifier connection.
func (a *App) Close() error {
	return a.notifier.Close()
}

// ErrorCount returns the number of error diagnostics reported so far.
func (a *App) ErrorCount() int {
	return a.recorder.ErrorCount()
}

func (a *App) newProcessor(deferWrites bool) *processor.Processor {
	return processor.New(a.store, processor.Options{
		DeferWrites: deferWrites,
		Sink:        a.sink,
		Logger:      a.logger,
		Metrics:     a.metrics,
		Notifier:    a.notifier,
	})
}

// Generate runs one full generation. In deferred mode every source root
// is discovered in its own round and all registries are written once at
// the end.
func (a *App) Generate(ctx context.Context, deferWrites bool) (*processor.Result, error) {
	proc := a.newProcessor(deferWrites)

	var res *processor.Result
	var err error
	if deferWrites {
		res, err = a.generateDeferred(ctx, proc)
	} else {
		var results []*scanner.ScanResult
		results, err = a.source.Scan(ctx, a.sink)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ix := scanner.BuildIndex(results)
		res, err = proc.Process(ctx, ix.Declarations(), ix)
	}
	if err != nil {
		return nil, err
	}

	a.writeMetrics()
	return res, nil
}

func (a *App) generateDeferred(ctx context.Context, proc *processor.Processor) (*processor.Result, error) {
	roots, err := a.source.Roots()
	if err != nil {
		return nil, fmt.Errorf("resolve paths: %w", err)
	}

	// The type model spans every root; each round only carries the
	// declarations found under its own root.
	perRoot := make([][]string, len(roots))
	seen := make(map[string]bool)
	var all []*scanner.ScanResult
	for i, root := range roots {
		results, err := a.source.ScanRoot(ctx, root, a.sink)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", root, err)
		}
		for _, r := range results {
			if seen[r.Path] {
				continue
			}
			seen[r.Path] = true
			all = append(all, r)
			perRoot[i] = append(perRoot[i], r.Path)
		}
	}
	ix := scanner.BuildIndex(all)

	total := &processor.Result{Deferred: true}
	for _, files := range perRoot {
		res, err := proc.Round(ctx, ix.DeclarationsIn(files), ix)
		if err != nil {
			return nil, err
		}
		total.Accepted += res.Accepted
		total.Rejected += res.Rejected
	}

	res, err := proc.Finalize(ctx)
	if err != nil {
		return nil, err
	}
	total.PassID = res.PassID
	total.Contracts = res.Contracts
	return total, nil
}

// Watch runs an initial pass and then a pass for every batch of changed
// files until ctx is cancelled. In deferred mode the registries are only
// written once the watch stops.
func (a *App) Watch(ctx context.Context, deferWrites bool) error {
	proc := a.newProcessor(deferWrites)

	initial, err := a.source.Scan(ctx, a.sink)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	files := make(map[string]*scanner.ScanResult, len(initial))
	for _, r := range initial {
		files[r.Path] = r
	}

	ix := scanner.BuildIndex(initial)
	if _, err := proc.Round(ctx, ix.Declarations(), ix); err != nil {
		return err
	}
	a.writeMetrics()

	watcher, err := scanner.NewWatcher(scanner.WatcherConfig{
		Source:        a.source,
		DebounceDelay: a.cfg.Watch.Debounce,
		Sink:          a.sink,
		Logger:        a.logger,
	})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	watcher.Prime(initial)
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer watcher.Stop()

	a.logger.Info("Watching for changes", "base", a.source.Base(), "defer", deferWrites)

	for batch := range watcher.Batches() {
		for _, ev := range batch.Events {
			if ev.Operation == scanner.OpDelete {
				delete(files, ev.Path)
			}
		}
		var changed []string
		for _, r := range batch.Results() {
			files[r.Path] = r
			changed = append(changed, r.Path)
		}
		if len(changed) == 0 {
			continue
		}

		ix := scanner.BuildIndex(slices.Collect(maps.Values(files)))
		decls := ix.DeclarationsIn(changed)
		if len(decls) == 0 {
			continue
		}
		if _, err := proc.Round(ctx, decls, ix); err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
		a.writeMetrics()
	}

	// ctx is done by now; the final write gets its own deadline
	fctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()
	if _, err := proc.Finalize(fctx); err != nil {
		return err
	}
	a.writeMetrics()
	return nil
}

// Show prints the registry of a contract in sorted order.
func (a *App) Show(contract string) error {
	regs, err := a.store.Load(contract)
	if err != nil {
		return err
	}
	if len(regs) == 0 {
		return fmt.Errorf("%w for %s in %s", ErrNoRegistrations, contract, a.store.Path(contract))
	}
	for _, r := range registry.Sorted(regs) {
		fmt.Fprintf(a.stdout, "%6d  %s\n", r.Priority, r.Name)
	}
	return nil
}

func (a *App) writeMetrics() {
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.logger.Warn("Failed to write metrics", "path", a.cfg.Metrics.Textfile, "error", err)
	}
}
