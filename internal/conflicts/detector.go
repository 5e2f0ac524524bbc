package conflicts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/orgsync/orgsync/internal/directory"
	"github.com/orgsync/orgsync/internal/grants"
)

// DepartmentLister yields departments in parent-before-child order.
type DepartmentLister interface {
	ListActiveOrdered(ctx context.Context) ([]directory.Department, error)
}

// Detector scans stored grant state for inconsistencies. It only reads, so
// it may run concurrently with an in-flight sync; it will simply observe a
// partially advanced state, which is acceptable for a diagnostic.
type Detector struct {
	departments DepartmentLister
	store       grants.Store
	logger      *slog.Logger
}

// NewDetector builds a Detector instance.
func NewDetector(departments DepartmentLister, store grants.Store, logger *slog.Logger) *Detector {
	return &Detector{departments: departments, store: store, logger: logger}
}

type observedState struct {
	deptID    int64
	direct    map[int64]grants.Grant
	inherited map[int64]grants.Grant
}

// Detect recomputes the expected inherited state in memory from direct
// grants only and reports divergence from the stored rows.
func (d *Detector) Detect(ctx context.Context) ([]Finding, error) {
	departments, err := d.departments.ListActiveOrdered(ctx)
	if err != nil {
		return nil, fmt.Errorf("conflicts: list departments: %w", err)
	}
	forest := directory.BuildForest(departments)

	observed := make(map[int64]observedState, forest.Size())
	// resolved holds the expected post-sync flow per department: direct
	// grants shadowing the expected inheritance from the parent's flow.
	resolved := make(map[int64]map[int64]grants.Grant, forest.Size())

	var findings []Finding
	for _, level := range forest.Levels() {
		for _, dept := range level {
			state, err := d.loadDepartment(ctx, dept.ID)
			if err != nil {
				return nil, err
			}
			observed[dept.ID] = state

			expectedInherited := map[int64]grants.Grant{}
			if parent, ok := forest.Parent(dept); ok {
				for permID, src := range resolved[parent.ID] {
					if _, overridden := state.direct[permID]; overridden {
						continue
					}
					origin := src.Origin()
					expectedInherited[permID] = grants.Grant{
						DepartmentID:  dept.ID,
						PermissionID:  permID,
						Granted:       src.Granted,
						Priority:      src.Priority - 1,
						InheritedFrom: &origin,
						Conditions:    src.Conditions,
					}
				}
			}

			flow := make(map[int64]grants.Grant, len(state.direct)+len(expectedInherited))
			for permID, g := range expectedInherited {
				flow[permID] = g
			}
			for permID, g := range state.direct {
				flow[permID] = g
			}
			resolved[dept.ID] = flow

			findings = append(findings, staleFindings(dept.ID, state, expectedInherited)...)
		}
	}

	findings = append(findings, d.revokingOverrides(forest, observed, resolved)...)
	d.logger.Info("conflict scan finished",
		slog.Int("departments", forest.Size()), slog.Int("findings", len(findings)))
	return findings, nil
}

func (d *Detector) loadDepartment(ctx context.Context, deptID int64) (observedState, error) {
	direct, err := d.store.DirectGrants(ctx, deptID)
	if err != nil {
		return observedState{}, fmt.Errorf("conflicts: read direct grants for %d: %w", deptID, err)
	}
	inherited, err := d.store.InheritedGrants(ctx, deptID)
	if err != nil {
		return observedState{}, fmt.Errorf("conflicts: read inherited grants for %d: %w", deptID, err)
	}
	state := observedState{
		deptID:    deptID,
		direct:    make(map[int64]grants.Grant, len(direct)),
		inherited: make(map[int64]grants.Grant, len(inherited)),
	}
	for _, g := range direct {
		state.direct[g.PermissionID] = g
	}
	for _, g := range inherited {
		state.inherited[g.PermissionID] = g
	}
	return state, nil
}

// staleFindings reports stored inherited rows that nothing upstream flows
// anymore. Cleanup during the next run removes them, hence low severity.
func staleFindings(deptID int64, state observedState, expected map[int64]grants.Grant) []Finding {
	var findings []Finding
	for permID, stored := range state.inherited {
		if _, ok := expected[permID]; ok {
			continue
		}
		values, _ := json.Marshal(map[string]any{
			"observed": grantView(stored),
			"expected": nil,
		})
		findings = append(findings, Finding{
			DepartmentID:      deptID,
			PermissionID:      permID,
			Kind:              KindStaleInherited,
			ConflictingValues: values,
			Proposal:          "delete the stale inherited row or re-run a full sync",
			Severity:          SeverityLow,
		})
	}
	return findings
}

// revokingOverrides reports direct revocations that shadow a granted flow
// while the subtree still holds inherited granted copies. The revocation
// changes effective access for the whole subtree, hence high severity.
func (d *Detector) revokingOverrides(forest *directory.Forest, observed map[int64]observedState, resolved map[int64]map[int64]grants.Grant) []Finding {
	var findings []Finding
	for deptID, state := range observed {
		dept, ok := forest.Get(deptID)
		if !ok {
			continue
		}
		parent, ok := forest.Parent(dept)
		if !ok {
			continue
		}
		for permID, direct := range state.direct {
			if direct.Granted {
				continue
			}
			upstream, flows := resolved[parent.ID][permID]
			if !flows || !upstream.Granted {
				continue
			}
			orphans := 0
			for _, childID := range forest.Subtree(deptID) {
				if g, ok := observed[childID].inherited[permID]; ok && g.Granted {
					orphans++
				}
			}
			if orphans == 0 {
				continue
			}
			values, _ := json.Marshal(map[string]any{
				"observed":            grantView(direct),
				"expected":            grantView(upstream),
				"orphanedDescendants": orphans,
			})
			findings = append(findings, Finding{
				DepartmentID:      deptID,
				PermissionID:      permID,
				Kind:              KindRevokingOverride,
				ConflictingValues: values,
				Proposal:          "acknowledge the access change for the subtree and re-run sync",
				Severity:          SeverityHigh,
			})
		}
	}
	return findings
}

func grantView(g grants.Grant) map[string]any {
	view := map[string]any{
		"granted":  g.Granted,
		"priority": g.Priority,
	}
	if g.InheritedFrom != nil {
		view["inheritedFrom"] = *g.InheritedFrom
	}
	return view
}
