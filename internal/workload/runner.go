// Package workload drives a carta map with concurrent goroutines and checks that no
// insert is lost or duplicated.
package workload

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"carta"
	"carta/hashing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ErrVerify is wrapped by every verification failure.
var ErrVerify = errors.New("workload: verification failed")

const (
	opGet    = "get"
	opInsert = "insert"
	opUpdate = "update"
	opRemove = "remove"
)

var opNames = []string{opGet, opInsert, opUpdate, opRemove}

// Report summarises a mixed run.
type Report struct {
	Elapsed time.Duration
	Ops     map[string]uint64 // by operation
	Hits    uint64            // operations that found their key
	Errors  uint64
	Stats   carta.Stats
}

// Runner owns one map and the keys it is driven with. Keys[i] is always stored with
// value i, so any reader can check what it gets back.
type Runner struct {
	cfg    Config
	logger *zap.Logger
	m      *carta.Map[string, int]
	keys   []string
	ops    *prometheus.CounterVec
}

// NewRunner builds the map and generates the keys. reg may be nil.
func NewRunner(cfg Config, logger *zap.Logger, reg prometheus.Registerer) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	build, err := hashing.Lookup(cfg.Hasher)
	if err != nil {
		return nil, err
	}
	policy, err := carta.ParsePoisonPolicy(cfg.Poison)
	if err != nil {
		return nil, err
	}
	keys, err := GenerateKeys(cfg.KeyGen, cfg.Keys)
	if err != nil {
		return nil, fmt.Errorf("generate keys: %w", err)
	}

	r := &Runner{
		cfg:    cfg,
		logger: logger,
		m: carta.New[string, int](hashing.String(build),
			carta.WithBucketCount(cfg.Buckets),
			carta.WithPoisonPolicy(policy),
			carta.WithLogger(logger)),
		keys: keys,
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carta",
			Subsystem: "bench",
			Name:      "ops_total",
			Help:      "Map operations issued by the workload.",
		}, []string{"op", "result"}),
	}
	if reg != nil {
		if err := reg.Register(r.ops); err != nil {
			return nil, fmt.Errorf("register op counters: %w", err)
		}
	}
	return r, nil
}

// Map returns the map under test.
func (r *Runner) Map() *carta.Map[string, int] {
	return r.m
}

// Populate inserts every key exactly once, spreading the keys over the workers.
func (r *Runner) Populate() error {
	var (
		wg       sync.WaitGroup
		failures atomic.Uint64
	)
	start := time.Now()
	for w := 0; w < r.cfg.Workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < len(r.keys); i += r.cfg.Workers {
				_, replaced, err := r.m.Insert(r.keys[i], i)
				r.count(opInsert, replaced, err)
				if err != nil || replaced {
					failures.Add(1)
				}
			}
		}(w)
	}
	wg.Wait()

	r.logger.Info("populated",
		zap.Int("keys", len(r.keys)),
		zap.Int("workers", r.cfg.Workers),
		zap.Duration("elapsed", time.Since(start)))
	if n := failures.Load(); n > 0 {
		return fmt.Errorf("%w: %d inserts replaced a value or failed", ErrVerify, n)
	}
	return nil
}

// Verify checks that the map holds exactly the generated keys, each with its value.
func (r *Runner) Verify() error {
	if n := r.m.Len(); n != len(r.keys) {
		return fmt.Errorf("%w: map holds %d keys, want %d", ErrVerify, n, len(r.keys))
	}
	for i, k := range r.keys {
		v, ok, err := r.m.Get(k)
		if err != nil {
			return fmt.Errorf("%w: get %q: %w", ErrVerify, k, err)
		}
		if !ok {
			return fmt.Errorf("%w: key %q missing", ErrVerify, k)
		}
		if v != i {
			return fmt.Errorf("%w: key %q holds %d, want %d", ErrVerify, k, v, i)
		}
	}
	return nil
}

// Mixed runs random operations until ctx is done or the configured duration passes.
// Updates and inserts always write a key's own index, so values stay checkable.
func (r *Runner) Mixed(ctx context.Context) (Report, error) {
	if len(r.keys) == 0 {
		return Report{Ops: map[string]uint64{}, Stats: r.m.Stats()}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Duration)
	defer cancel()

	var (
		wg                   sync.WaitGroup
		counts               [4]atomic.Uint64
		hits, errs, mismatch atomic.Uint64
	)
	start := time.Now()
	for w := 0; w < r.cfg.Workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))
			for ctx.Err() == nil {
				i := rnd.Intn(len(r.keys))
				k := r.keys[i]
				var (
					v   int
					ok  bool
					err error
					op  int
				)
				switch p := rnd.Intn(10); {
				case p < 6:
					op = 0
					v, ok, err = r.m.Get(k)
				case p < 8:
					op = 2
					v, ok, err = r.m.Update(k, func(int) int { return i })
				case p < 9:
					op = 1
					v, ok, err = r.m.Insert(k, i)
				default:
					op = 3
					v, ok, err = r.m.Remove(k)
				}
				counts[op].Add(1)
				r.count(opNames[op], ok, err)
				switch {
				case err != nil:
					errs.Add(1)
				case ok:
					hits.Add(1)
					if v != i {
						mismatch.Add(1)
					}
				}
			}
		}(time.Now().UnixNano() + int64(w))
	}
	wg.Wait()

	rep := Report{
		Elapsed: time.Since(start),
		Ops:     make(map[string]uint64, len(opNames)),
		Hits:    hits.Load(),
		Errors:  errs.Load(),
		Stats:   r.m.Stats(),
	}
	for op, name := range opNames {
		rep.Ops[name] = counts[op].Load()
	}
	r.logger.Info("mixed workload finished",
		zap.Duration("elapsed", rep.Elapsed),
		zap.Uint64("hits", rep.Hits),
		zap.Uint64("errors", rep.Errors),
		zap.Int("entries", rep.Stats.Entries))

	if n := mismatch.Load(); n > 0 {
		return rep, fmt.Errorf("%w: %d reads returned another key's value", ErrVerify, n)
	}
	if rep.Errors > 0 {
		return rep, fmt.Errorf("%w: %d operations failed", ErrVerify, rep.Errors)
	}
	return rep, nil
}

func (r *Runner) count(op string, ok bool, err error) {
	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case ok:
		result = "hit"
	}
	r.ops.WithLabelValues(op, result).Inc()
}
