package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/orgsync/orgsync/internal/directory"
	"github.com/orgsync/orgsync/internal/grants"
	"github.com/orgsync/orgsync/internal/platform/db"
)

// Options tunes one propagation run.
type Options struct {
	// LevelWorkers bounds concurrent department processing within one level.
	// Departments on the same level are mutually independent.
	LevelWorkers int
	// SoftDeadline, when positive, stops the run between levels once the
	// elapsed time exceeds it. A stopped run reports a partial summary,
	// which is a valid non-error outcome.
	SoftDeadline time.Duration
	// AfterLevel runs after every committed level; an error aborts the run.
	// The orchestrator uses it to extend the lease.
	AfterLevel func(ctx context.Context, level int) error
}

// Result accumulates the outcome of one propagation run.
type Result struct {
	Processed int
	Errors    int
	Writes    int
	Unchanged int
	Partial   bool
	Messages  []string
}

// Propagator walks the department tree level by level and reconciles
// inherited grant rows against each parent's resolved set.
type Propagator struct {
	store  grants.Store
	logger *slog.Logger
}

// NewPropagator builds a Propagator instance.
func NewPropagator(store grants.Store, logger *slog.Logger) *Propagator {
	return &Propagator{store: store, logger: logger}
}

// Run processes every admitted department in the forest. A store failure for
// one department is retried once, then recorded and skipped; the run always
// continues with the remaining departments. Level L+1 never starts before
// all of level L has committed, because it reads level L's fresh rows.
func (p *Propagator) Run(ctx context.Context, forest *directory.Forest, opts Options) (Result, error) {
	workers := opts.LevelWorkers
	if workers <= 0 {
		workers = 1
	}

	var result Result
	started := time.Now()

	for level, departments := range forest.Levels() {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if opts.SoftDeadline > 0 && level > 0 && time.Since(started) > opts.SoftDeadline {
			p.logger.Warn("soft deadline reached, stopping between levels",
				slog.Int("level", level), slog.Duration("elapsed", time.Since(started)))
			result.Partial = true
			return result, nil
		}

		groups := byParentGroups(departments)
		levelResults := make([]Result, len(groups))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i, group := range groups {
			g.Go(func() error {
				levelResults[i] = p.processGroup(gctx, group)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return result, err
		}
		for _, lr := range levelResults {
			result.Processed += lr.Processed
			result.Errors += lr.Errors
			result.Writes += lr.Writes
			result.Unchanged += lr.Unchanged
			result.Messages = append(result.Messages, lr.Messages...)
		}

		if opts.AfterLevel != nil {
			if err := opts.AfterLevel(ctx, level); err != nil {
				return result, fmt.Errorf("sync: after level %d: %w", level, err)
			}
		}
	}
	return result, nil
}

// parentGroup holds same-level departments sharing one parent, so the
// parent's resolved set is read once per group.
type parentGroup struct {
	parentID *int64
	members  []directory.Department
}

func byParentGroups(departments []directory.Department) []parentGroup {
	index := make(map[int64]int)
	var groups []parentGroup
	for _, dept := range departments {
		if dept.ParentID == nil {
			groups = append(groups, parentGroup{members: []directory.Department{dept}})
			continue
		}
		pos, ok := index[*dept.ParentID]
		if !ok {
			pos = len(groups)
			index[*dept.ParentID] = pos
			groups = append(groups, parentGroup{parentID: dept.ParentID})
		}
		groups[pos].members = append(groups[pos].members, dept)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		left, right := groups[i], groups[j]
		switch {
		case left.parentID == nil:
			return right.parentID != nil
		case right.parentID == nil:
			return false
		default:
			return *left.parentID < *right.parentID
		}
	})
	return groups
}

func (p *Propagator) processGroup(ctx context.Context, group parentGroup) Result {
	var result Result

	var parentResolved []grants.Grant
	if group.parentID != nil {
		var err error
		parentResolved, err = p.readWithRetry(ctx, func() ([]grants.Grant, error) {
			return p.store.ResolvedGrants(ctx, *group.parentID)
		})
		if err != nil {
			// Children of an unreadable parent process against nothing
			// meaningful, so each is recorded as failed for this run.
			for _, dept := range group.members {
				result.Errors++
				result.Messages = append(result.Messages,
					fmt.Sprintf("department %d: read parent %d grants: %v", dept.ID, *group.parentID, err))
			}
			return result
		}
	}

	for _, dept := range group.members {
		if err := p.processDepartment(ctx, dept, parentResolved, &result); err != nil {
			result.Errors++
			result.Messages = append(result.Messages, fmt.Sprintf("department %d: %v", dept.ID, err))
			p.logger.Error("department sync failed",
				slog.Int64("department", dept.ID), slog.Any("error", err))
			continue
		}
		result.Processed++
	}
	return result
}

func (p *Propagator) processDepartment(ctx context.Context, dept directory.Department, parentResolved []grants.Grant, result *Result) error {
	direct, err := p.readWithRetry(ctx, func() ([]grants.Grant, error) {
		return p.store.DirectGrants(ctx, dept.ID)
	})
	if err != nil {
		return fmt.Errorf("read direct grants: %w", err)
	}
	existing, err := p.readWithRetry(ctx, func() ([]grants.Grant, error) {
		return p.store.InheritedGrants(ctx, dept.ID)
	})
	if err != nil {
		return fmt.Errorf("read inherited grants: %w", err)
	}

	plan := BuildPlan(dept.ID, parentResolved, direct, existing)
	result.Unchanged += plan.Unchanged
	if plan.IsEmpty() {
		return nil
	}

	err = p.store.ApplyDepartment(ctx, dept.ID, plan.Upserts, plan.Deletes)
	if err != nil && db.IsRetryable(err) {
		err = p.store.ApplyDepartment(ctx, dept.ID, plan.Upserts, plan.Deletes)
	}
	if err != nil {
		return fmt.Errorf("apply batch: %w", err)
	}
	result.Writes += len(plan.Upserts) + len(plan.Deletes)
	return nil
}

func (p *Propagator) readWithRetry(ctx context.Context, read func() ([]grants.Grant, error)) ([]grants.Grant, error) {
	out, err := read()
	if err != nil && db.IsRetryable(err) && ctx.Err() == nil {
		out, err = read()
	}
	return out, err
}
