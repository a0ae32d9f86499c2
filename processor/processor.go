// Package processor drives generation passes: it collects service
// declarations, merges them into the registry file of each contract and
// writes the result.
//
// A Processor runs either in immediate mode, where every Round writes the
// registries it touched, or in deferred mode, where rounds only discover
// and nothing is written until Finalize.
package processor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/metainf/collector"
	"github.com/c360studio/metainf/diag"
	"github.com/c360studio/metainf/metrics"
	"github.com/c360studio/metainf/notify"
	"github.com/c360studio/metainf/registry"
	"github.com/c360studio/metainf/scanner"
)

// ErrFinalized is returned by Round after Finalize.
var ErrFinalized = errors.New("processor already finalized")

// Options configures a Processor.
type Options struct {
	// DeferWrites holds every write until Finalize.
	DeferWrites bool

	// Sink receives diagnostics. Defaults to diag.Discard.
	Sink diag.Sink

	// Logger for logging events
	Logger *slog.Logger

	// Metrics records pass activity. Nil records nothing.
	Metrics *metrics.Metrics

	// Notifier is told about each written registry. Defaults to notify.Nop.
	Notifier notify.Notifier
}

// ContractResult is the outcome for one contract in a pass.
type ContractResult struct {
	Contract string
	Path     string

	// Entries is the merged registry that was (or would have been) written.
	Entries []registry.Registration

	ReadErr  error
	WriteErr error
}

// Written reports whether the registry file was written.
func (c ContractResult) Written() bool {
	return c.WriteErr == nil
}

// Result summarizes a Round or Finalize call.
type Result struct {
	PassID string

	// Accepted and Rejected count the declarations of this call.
	Accepted int
	Rejected int

	// Deferred is set when discoveries were held for Finalize.
	Deferred bool

	// Contracts lists the contracts written in this call, sorted.
	Contracts []ContractResult
}

// HasErrors reports whether any declaration was rejected or any registry
// failed to load or write.
func (r *Result) HasErrors() bool {
	if r.Rejected > 0 {
		return true
	}
	for _, c := range r.Contracts {
		if c.ReadErr != nil || c.WriteErr != nil {
			return true
		}
	}
	return false
}

// Processor runs generation passes against a registry store. It is not
// safe for concurrent use.
type Processor struct {
	store    *registry.Store
	opts     Options
	sink     diag.Sink
	logger   *slog.Logger
	notifier notify.Notifier

	// pending holds discoveries awaiting Finalize in deferred mode
	pending   *collector.Collector
	finalized bool
}

// New creates a processor writing through store.
func New(store *registry.Store, opts Options) *Processor {
	sink := opts.Sink
	if sink == nil {
		sink = diag.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}

	return &Processor{
		store:    store,
		opts:     opts,
		sink:     sink,
		logger:   logger,
		notifier: notifier,
		pending:  collector.New(sink, logger),
	}
}

// Round processes one batch of declarations. In immediate mode the
// registries of every contract discovered in the batch are merged and
// written. In deferred mode the batch is only collected.
func (p *Processor) Round(ctx context.Context, decls []scanner.Declaration, model scanner.TypeModel) (*Result, error) {
	if p.finalized {
		return nil, ErrFinalized
	}
	start := time.Now()

	result := &Result{PassID: uuid.NewString()}
	logger := p.logger.With("pass", result.PassID)

	if p.opts.DeferWrites {
		before := len(p.pending.Rejected())
		result.Accepted = p.pending.Collect(decls, model)
		result.Rejected = len(p.pending.Rejected()) - before
		result.Deferred = true
	} else {
		c := collector.New(p.sink, p.logger)
		result.Accepted = c.Collect(decls, model)
		result.Rejected = len(c.Rejected())
		result.Contracts = p.write(ctx, logger, result.PassID, c.Registry())
	}

	p.opts.Metrics.Declarations(result.Accepted, result.Rejected)
	p.opts.Metrics.ObservePass("round", time.Since(start))

	logger.Info("Round complete",
		"accepted", result.Accepted,
		"rejected", result.Rejected,
		"contracts", len(result.Contracts),
		"deferred", result.Deferred)

	return result, nil
}

// Finalize declares that no more source will arrive. In deferred mode
// the collected registrations are merged and written; in immediate mode
// everything was already written and Finalize writes nothing. Further
// calls to Round fail with ErrFinalized.
func (p *Processor) Finalize(ctx context.Context) (*Result, error) {
	if p.finalized {
		return nil, ErrFinalized
	}
	p.finalized = true
	start := time.Now()

	result := &Result{PassID: uuid.NewString()}
	logger := p.logger.With("pass", result.PassID)

	if p.opts.DeferWrites {
		result.Contracts = p.write(ctx, logger, result.PassID, p.pending.Registry())
		p.pending.Reset()
	}

	p.opts.Metrics.ObservePass("finalize", time.Since(start))

	logger.Info("Processing finalized", "contracts", len(result.Contracts))
	return result, nil
}

// Process runs a single complete pass: one Round followed by Finalize.
// The returned result covers both.
func (p *Processor) Process(ctx context.Context, decls []scanner.Declaration, model scanner.TypeModel) (*Result, error) {
	round, err := p.Round(ctx, decls, model)
	if err != nil {
		return nil, err
	}
	final, err := p.Finalize(ctx)
	if err != nil {
		return nil, err
	}

	round.Contracts = append(round.Contracts, final.Contracts...)
	round.Deferred = false
	return round, nil
}

// write merges and writes the registry of every contract in reg. Errors
// are reported per contract and never stop the others.
func (p *Processor) write(ctx context.Context, logger *slog.Logger, passID string, reg registry.Registry) []ContractResult {
	var results []ContractResult
	for _, contract := range reg.Contracts() {
		res := ContractResult{
			Contract: contract,
			Path:     p.store.Path(contract),
		}
		loc := diag.Location{File: res.Path}

		existing, err := p.store.Load(contract)
		if err != nil {
			// Treat the contract as having no previous registrations
			res.ReadErr = err
			p.opts.Metrics.ReadFailed()
			diag.Errorf(p.sink, loc, "%v", err)
		}

		merged := registry.Merge(reg[contract], existing)
		res.Entries = registry.Sorted(merged)

		diag.Notef(p.sink, diag.Location{}, "Writing %s", p.store.ResourceName(contract))
		if err := p.store.Write(contract, merged); err != nil {
			res.WriteErr = err
			p.opts.Metrics.WriteFailed()
			diag.Errorf(p.sink, loc, "%v", err)
			results = append(results, res)
			continue
		}

		p.opts.Metrics.RegistryWritten(contract, len(merged))
		logger.Debug("Registry written",
			"contract", contract,
			"path", res.Path,
			"entries", len(merged))

		if err := p.notifier.Notify(ctx, event(passID, res)); err != nil {
			logger.Warn("Failed to publish registry event",
				"contract", contract,
				"error", err)
		}

		results = append(results, res)
	}
	return results
}

func event(passID string, res ContractResult) notify.Event {
	entries := make([]notify.Entry, len(res.Entries))
	for i, r := range res.Entries {
		entries[i] = notify.Entry{Name: r.Name, Priority: r.Priority}
	}
	return notify.Event{
		PassID:    passID,
		Contract:  res.Contract,
		Path:      res.Path,
		Entries:   entries,
		WrittenAt: time.Now().UTC(),
	}
}
