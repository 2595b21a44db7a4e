// Package crawl walks the BPS administrative hierarchy level by level. Each
// level fans out one fetch task per parent code discovered at the previous
// level; tasks run on a bounded worker pool and levels are strict barriers,
// since a level's task list only exists once its parent level has settled.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"wilayah/internal/bps"
	"wilayah/internal/runlog"
)

// ErrorPolicy decides what a per-task failure does to the rest of the run.
type ErrorPolicy string

const (
	// PolicyContinue records the failure and keeps crawling; the failed
	// parent simply contributes no children.
	PolicyContinue ErrorPolicy = "continue"
	// PolicyAbort stops dispatching new tasks after the first failure and
	// fails the run once in-flight tasks settle.
	PolicyAbort ErrorPolicy = "abort"
)

// ParsePolicy validates an on-error policy string.
func ParsePolicy(s string) (ErrorPolicy, error) {
	switch ErrorPolicy(s) {
	case PolicyContinue, PolicyAbort:
		return ErrorPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown on-error policy %q (valid: continue, abort)", s)
	}
}

// Fetcher is the upstream API surface the crawler needs.
type Fetcher interface {
	FetchWilayah(ctx context.Context, level bps.Level, parent, periode string) (payload []byte, units []bps.Unit, err error)
}

// Saver receives each successful payload as it arrives. Implementations must
// tolerate concurrent calls with distinct (level, parent) keys.
type Saver interface {
	Save(periode string, level bps.Level, parent string, payload []byte) error
}

// task is one pending fetch: a (level, parent) pair. Tasks are built from
// the prior level's units and discarded once their response is stored.
type task struct {
	parent string
}

// Failure records one task that contributed no children.
type Failure struct {
	Level  bps.Level
	Parent string
	Err    error
}

func (f Failure) Error() string {
	return fmt.Sprintf("level=%s parent=%s: %v", f.Level, parentLabel(f.Parent), f.Err)
}

// Result summarizes a finished crawl.
type Result struct {
	Periode  string
	Units    map[bps.Level][]bps.Unit
	Failures []Failure
}

// Count returns the number of units discovered at a level.
func (r *Result) Count(level bps.Level) int { return len(r.Units[level]) }

// FailureCount returns the number of failed tasks at a level.
func (r *Result) FailureCount(level bps.Level) int {
	n := 0
	for _, f := range r.Failures {
		if f.Level == level {
			n++
		}
	}
	return n
}

// Crawler traverses the hierarchy for one periode. All fields are read-only
// during Run.
type Crawler struct {
	Fetcher Fetcher
	Store   Saver
	Log     *runlog.Writer
	Workers int
	OnError ErrorPolicy

	// Logf receives human progress lines; nil disables them.
	Logf func(format string, args ...any)
}

// Run fetches every requested level in hierarchy order. An AuthError from
// any task is always fatal; other task failures follow OnError. Even on
// error the returned Result reflects everything stored so far.
func (c *Crawler) Run(ctx context.Context, periode string, levels []bps.Level) (*Result, error) {
	workers := c.Workers
	if workers < 1 {
		workers = 1
	}
	policy := c.OnError
	if policy == "" {
		policy = PolicyContinue
	}

	result := &Result{
		Periode: periode,
		Units:   make(map[bps.Level][]bps.Unit, len(levels)),
	}
	var (
		mu       sync.Mutex
		fatalErr error
		aborted  = make(chan struct{})
		abortOne sync.Once
	)
	abort := func(err error, fatal bool) {
		mu.Lock()
		if fatal && fatalErr == nil {
			fatalErr = err
		}
		mu.Unlock()
		abortOne.Do(func() { close(aborted) })
	}

	parents := []task{{parent: ""}}
	for _, level := range levels {
		if len(parents) == 0 {
			break
		}
		if isAborted(aborted) {
			break
		}
		c.logf("level %s: dispatching %d request(s)", level, len(parents))
		c.record(runlog.Event{Type: "level_start", Level: level.String(), Payload: map[string]any{"tasks": len(parents)}})

		// One result slot per task, indexed by dispatch order, so the
		// next level's task list follows parent-discovery order no matter
		// how completions interleave.
		unitsByTask := make([][]bps.Unit, len(parents))
		sem := make(chan struct{}, workers)
		var wg sync.WaitGroup

	dispatch:
		for i, t := range parents {
			select {
			case <-aborted:
				break dispatch
			case <-ctx.Done():
				abort(ctx.Err(), true)
				break dispatch
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func(i int, t task) {
				defer wg.Done()
				defer func() { <-sem }()
				payload, units, err := c.Fetcher.FetchWilayah(ctx, level, t.parent, periode)
				if err != nil {
					c.taskFailed(result, &mu, level, t.parent, err, policy, abort)
					return
				}
				if err := c.Store.Save(periode, level, t.parent, payload); err != nil {
					c.taskFailed(result, &mu, level, t.parent, err, policy, abort)
					return
				}
				unitsByTask[i] = units
			}(i, t)
		}
		wg.Wait()

		// Assemble the level in dispatch order, dropping duplicate codes
		// (the upstream occasionally repeats a unit under two parents).
		seen := make(map[string]bool)
		var levelUnits []bps.Unit
		var next []task
		for _, units := range unitsByTask {
			for _, u := range units {
				if seen[u.KodeBPS] {
					c.logf("level %s: skipping duplicate kode_bps=%s", level, u.KodeBPS)
					continue
				}
				seen[u.KodeBPS] = true
				levelUnits = append(levelUnits, u)
				next = append(next, task{parent: u.KodeBPS})
			}
		}
		result.Units[level] = levelUnits
		c.logf("level %s: %d unit(s), %d failure(s)", level, len(levelUnits), result.FailureCount(level))
		c.record(runlog.Event{Type: "level_done", Level: level.String(), Payload: map[string]any{
			"units":    len(levelUnits),
			"failures": result.FailureCount(level),
		}})
		parents = next
	}

	mu.Lock()
	defer mu.Unlock()
	if fatalErr != nil {
		return result, fatalErr
	}
	if policy == PolicyAbort && len(result.Failures) > 0 {
		return result, fmt.Errorf("crawl aborted after %d failed task(s), first: %v", len(result.Failures), result.Failures[0])
	}
	return result, nil
}

// taskFailed books one failed task and decides whether the run keeps going.
func (c *Crawler) taskFailed(result *Result, mu *sync.Mutex, level bps.Level, parent string, err error, policy ErrorPolicy, abort func(error, bool)) {
	mu.Lock()
	result.Failures = append(result.Failures, Failure{Level: level, Parent: parent, Err: err})
	mu.Unlock()
	c.logf("level %s parent=%s failed: %v", level, parentLabel(parent), err)
	c.record(runlog.Event{Type: "task_failed", Level: level.String(), Parent: parent, Error: err.Error()})

	var authErr *bps.AuthError
	if errors.As(err, &authErr) {
		abort(err, true)
		return
	}
	if policy == PolicyAbort {
		abort(err, false)
	}
}

func (c *Crawler) logf(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
	}
}

func (c *Crawler) record(evt runlog.Event) {
	if c.Log == nil {
		return
	}
	if err := c.Log.Append(evt); err != nil {
		c.logf("runlog: %v", err)
	}
}

func isAborted(aborted <-chan struct{}) bool {
	select {
	case <-aborted:
		return true
	default:
		return false
	}
}

func parentLabel(parent string) string {
	if parent == "" {
		return "-"
	}
	return parent
}
