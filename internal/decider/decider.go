// Package decider answers the single question the build engine keeps asking:
// does this output need to be rebuilt from these inputs with this action?
// Decisions are content-based (sha256 fingerprints), with an optional stat
// fast path that skips re-reading files whose size and mtime are unchanged
// since the last record. Stat evidence is only ever trusted when conclusive;
// anything ambiguous falls back to hashing.
package decider

import (
	"context"
	"fmt"
	"os"
	"time"

	"git.home.luguber.info/inful/docgen/internal/paths"
)

// Decider makes and records build decisions against a RecordStore.
type Decider struct {
	store    RecordStore
	statFast bool
	onHash   func(path string)
}

// Option configures a Decider.
type Option func(*Decider)

// WithStatFastPath enables the size+mtime fast path. Off by default, so the
// default behavior is pure content hashing.
func WithStatFastPath(enabled bool) Option {
	return func(d *Decider) { d.statFast = enabled }
}

// WithHashObserver registers a callback invoked with the path of every file
// whose content gets hashed. Tests use it to prove the fast path avoids
// reads.
func WithHashObserver(fn func(path string)) Option {
	return func(d *Decider) { d.onHash = fn }
}

// New creates a Decider over the given store.
func New(store RecordStore, opts ...Option) *Decider {
	d := &Decider{store: store}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Decider) observeHash(path string) {
	if d.onHash != nil {
		d.onHash(path)
	}
}

// Store exposes the underlying record store, mainly so owners can close it.
func (d *Decider) Store() RecordStore { return d.store }

// Decide reports whether output must be (re)built from inputs via action.
// The returned reason is for logging. Decide never runs tools and never
// writes records.
func (d *Decider) Decide(ctx context.Context, inputs []paths.Path, action string, output paths.Path) (bool, string, error) {
	key := normPath(output.Abs())

	outStat, err := statOf(output.Abs())
	if err != nil {
		if os.IsNotExist(err) {
			return true, "output missing", nil
		}
		return true, "", fmt.Errorf("stat output: %w", err)
	}

	rec, ok, err := d.store.Get(ctx, key)
	if err != nil {
		return true, "", fmt.Errorf("load record: %w", err)
	}
	if !ok {
		return true, "no record", nil
	}

	same, err := d.inputsUnchanged(inputs, action, rec)
	if err != nil {
		return true, "", err
	}
	if !same {
		return true, "inputs changed", nil
	}

	// Tamper guard: the output itself must still carry the recorded content.
	if !(d.statFast && outStat == rec.Output) {
		outHash, err := d.hashFile(output.Abs())
		if err != nil {
			return true, "", err
		}
		if outHash != rec.OutputHash {
			return true, "output modified", nil
		}
	}

	return false, "up to date", nil
}

// inputsUnchanged checks the stored input fingerprint against the current
// inputs. With the fast path on, conclusive stat matches skip hashing.
func (d *Decider) inputsUnchanged(inputs []paths.Path, action string, rec Record) (bool, error) {
	if d.statFast && len(rec.Inputs) == len(inputs) {
		match := true
		for i, in := range inputs {
			st, err := statOf(in.Abs())
			if err != nil {
				match = false
				break
			}
			if st != rec.Inputs[i] {
				match = false
				break
			}
		}
		if match {
			return true, nil
		}
	}

	inHash, err := d.hashInputs(inputs, action)
	if err != nil {
		return false, err
	}
	return inHash == rec.InputHash, nil
}

// Record stores the decision state after a successful build. Callers must
// only invoke it once the output verifiably exists.
func (d *Decider) Record(ctx context.Context, inputs []paths.Path, action string, output paths.Path) error {
	key := normPath(output.Abs())

	inHash, err := d.hashInputs(inputs, action)
	if err != nil {
		return err
	}

	stats := make([]FileStat, 0, len(inputs))
	for _, in := range inputs {
		st, err := statOf(in.Abs())
		if err != nil {
			return fmt.Errorf("stat input: %w", err)
		}
		stats = append(stats, st)
	}

	outHash, err := d.hashFile(output.Abs())
	if err != nil {
		return err
	}
	outStat, err := statOf(output.Abs())
	if err != nil {
		return fmt.Errorf("stat output: %w", err)
	}

	rec := Record{
		InputHash:  inHash,
		OutputHash: outHash,
		Inputs:     stats,
		Output:     outStat,
		RecordedAt: time.Now().UTC(),
	}
	return d.store.Put(ctx, key, rec)
}
