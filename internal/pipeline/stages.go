package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/generation"
	"github.com/phrazzld/sprint-planner-api/internal/invoker"
	"github.com/phrazzld/sprint-planner-api/internal/platform/logger"
	"github.com/phrazzld/sprint-planner-api/internal/prompt"
	"github.com/phrazzld/sprint-planner-api/internal/store"
)

// Invoker performs validated generation calls.
type Invoker interface {
	Invoke(ctx context.Context, call invoker.Call, dst any) error
}

// DraftResult lists the coarse items created by Draft.
type DraftResult struct {
	Items []*domain.WorkItem
}

// RefineResult describes a Refine pass.
type RefineResult struct {
	Refined []*domain.WorkItem
	// Unreferenced counts coarse items the response did not mention; they
	// stay at round 1.
	Unreferenced int
	Edges        int
}

// SplitResult describes a Split pass.
type SplitResult struct {
	Created      []*domain.WorkItem
	Superseded   int
	StaleParents int
}

// Stages runs the generation passes against a store.
type Stages struct {
	provider store.Provider
	invoker  Invoker
	prompts  prompt.Builder
	logger   *slog.Logger
	now      func() time.Time
}

// New creates Stages.
func New(provider store.Provider, inv Invoker, prompts prompt.Builder, log *slog.Logger) *Stages {
	if provider == nil || inv == nil || prompts == nil {
		panic("pipeline dependencies cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Stages{
		provider: provider,
		invoker:  inv,
		prompts:  prompts,
		logger:   log.With(slog.String("component", "pipeline")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// sprintContext loads the sprint and its project.
func (s *Stages) sprintContext(ctx context.Context, sprintID uuid.UUID) (*domain.Sprint, *domain.Project, error) {
	sprint, err := s.provider.Planning().GetSprint(ctx, sprintID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load sprint %s: %w", sprintID, err)
	}
	project, err := s.provider.Planning().GetProject(ctx, sprint.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load project %s: %w", sprint.ProjectID, err)
	}
	return sprint, project, nil
}

// Draft issues one generation call per planning unit assigned to the sprint
// and stores the returned tasks as coarse items, numbered after the sprint's
// highest order index.
func (s *Stages) Draft(ctx context.Context, sprintID uuid.UUID, jobID *uuid.UUID) (*DraftResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With("stage", "draft", "sprint_id", sprintID)

	sprint, project, err := s.sprintContext(ctx, sprintID)
	if err != nil {
		return nil, err
	}
	units, err := s.provider.Planning().ListSprintUnits(ctx, sprintID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sprint planning units: %w", err)
	}
	if len(units) == 0 {
		log.WarnContext(ctx, "sprint has no planning units, nothing to draft")
	}

	result := &DraftResult{Items: make([]*domain.WorkItem, 0)}
	for _, unit := range units {
		text, err := s.prompts.Draft(prompt.DraftInput{Unit: unit, Sprint: sprint, DetailLevel: project.DetailLevel})
		if err != nil {
			return result, err
		}

		var resp draftResponse
		err = s.invoker.Invoke(ctx, invoker.Call{
			Intent:    generation.IntentTaskDraft,
			Prompt:    text,
			Refs:      []string{unit.Name},
			ProjectID: &project.ID,
			JobID:     jobID,
			StepType:  string(generation.IntentTaskDraft),
		}, &resp)
		if err != nil {
			return result, err
		}

		unitID := unit.ID
		var created []*domain.WorkItem
		err = s.provider.InTx(ctx, func(ctx context.Context, tx store.Provider) error {
			next, err := tx.WorkItems().MaxOrderIndex(ctx, sprintID)
			if err != nil {
				return err
			}
			created = make([]*domain.WorkItem, 0, len(resp.Tasks))
			for _, t := range resp.Tasks {
				next++
				item, err := domain.NewDraftWorkItem(project.ID, sprintID, &unitID, t.Title, t.Description, next, t.Tags)
				if err != nil {
					return fmt.Errorf("invalid draft task %q: %w", t.Title, err)
				}
				created = append(created, item)
			}
			return tx.WorkItems().CreateBatch(ctx, created)
		})
		if err != nil {
			return result, fmt.Errorf("failed to store draft items for unit %s: %w", unit.ID, err)
		}

		result.Items = append(result.Items, created...)
		log.InfoContext(ctx, "drafted work items", "planning_unit_id", unit.ID, "count", len(created))
	}
	return result, nil
}

// Refine sends every coarse item of the sprint in one call and promotes the
// items the response references to medium, replacing their dependency edges.
// Edges to items outside the sprint's live set and self references are dropped.
func (s *Stages) Refine(ctx context.Context, sprintID uuid.UUID, jobID *uuid.UUID) (*RefineResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With("stage", "refine", "sprint_id", sprintID)

	_, project, err := s.sprintContext(ctx, sprintID)
	if err != nil {
		return nil, err
	}
	coarse, err := s.provider.WorkItems().ListBySprint(ctx, sprintID, store.WorkItemFilter{Granularity: domain.GranularityCoarse})
	if err != nil {
		return nil, fmt.Errorf("failed to list coarse items: %w", err)
	}
	result := &RefineResult{Refined: make([]*domain.WorkItem, 0)}
	if len(coarse) == 0 {
		log.InfoContext(ctx, "no coarse items to refine")
		return result, nil
	}

	constraints, err := s.provider.Planning().ListQualityConstraints(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quality constraints: %w", err)
	}
	var dod, nfr []string
	for _, c := range constraints {
		switch c.Kind {
		case domain.QualityKindDoD:
			dod = append(dod, c.Text)
		case domain.QualityKindNFR:
			nfr = append(nfr, c.Text)
		}
	}

	text, err := s.prompts.Refine(prompt.RefineInput{Items: coarse, DoD: dod, NFR: nfr, DetailLevel: project.DetailLevel})
	if err != nil {
		return nil, err
	}

	var resp refineResponse
	err = s.invoker.Invoke(ctx, invoker.Call{
		Intent:    generation.IntentTaskRefine,
		Prompt:    text,
		Refs:      itemRefs(coarse),
		ProjectID: &project.ID,
		JobID:     jobID,
		StepType:  string(generation.IntentTaskRefine),
	}, &resp)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*domain.WorkItem, len(coarse))
	ids := make([]uuid.UUID, 0, len(coarse))
	for _, it := range coarse {
		byID[it.ID] = it
		ids = append(ids, it.ID)
	}

	err = s.provider.InTx(ctx, func(ctx context.Context, tx store.Provider) error {
		live, err := tx.WorkItems().ListBySprint(ctx, sprintID, store.WorkItemFilter{})
		if err != nil {
			return err
		}
		known := make(map[uuid.UUID]struct{}, len(live))
		for _, it := range live {
			known[it.ID] = struct{}{}
		}

		edges := make([]domain.DependencyEdge, 0)
		seenEdge := make(map[domain.DependencyEdge]struct{})
		refined := make(map[uuid.UUID]struct{})
		for _, t := range resp.Tasks {
			id, err := uuid.Parse(t.TaskID)
			if err != nil {
				log.WarnContext(ctx, "ignoring refined task with malformed id", "task_id", t.TaskID)
				continue
			}
			item, ok := byID[id]
			if !ok {
				log.WarnContext(ctx, "ignoring refined task for unknown item", "task_id", t.TaskID)
				continue
			}
			if _, dup := refined[id]; dup {
				continue
			}
			if err := item.Promote(domain.Refinement{
				Title:              t.Title,
				Description:        t.Description,
				AcceptanceCriteria: t.AcceptanceCriteria,
				DoDFocus:           t.DoDFocus,
				NFRFocus:           t.NFRFocus,
			}); err != nil {
				return fmt.Errorf("failed to promote item %s: %w", id, err)
			}
			if err := tx.WorkItems().Update(ctx, item); err != nil {
				return err
			}
			refined[id] = struct{}{}
			result.Refined = append(result.Refined, item)

			for _, raw := range t.DependsOnTaskIDs {
				depID, err := uuid.Parse(raw)
				if err != nil {
					continue
				}
				if _, ok := known[depID]; !ok {
					continue
				}
				edge, err := domain.NewDependencyEdge(id, depID)
				if err != nil {
					continue
				}
				if _, dup := seenEdge[edge]; dup {
					continue
				}
				seenEdge[edge] = struct{}{}
				edges = append(edges, edge)
			}
		}

		result.Edges = len(edges)
		return tx.WorkItems().ReplaceDependencies(ctx, ids, edges)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store refinement: %w", err)
	}

	result.Unreferenced = len(coarse) - len(result.Refined)
	if result.Unreferenced > 0 {
		log.WarnContext(ctx, "refinement left items unreferenced at round 1", "count", result.Unreferenced)
	}
	log.InfoContext(ctx, "refined work items", "count", len(result.Refined), "edges", result.Edges)
	return result, nil
}

// Split sends every medium item of the sprint in one call, replaces earlier
// fine items with the returned children and marks each parent that received
// a child stale.
func (s *Stages) Split(ctx context.Context, sprintID uuid.UUID, jobID *uuid.UUID) (*SplitResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With("stage", "split", "sprint_id", sprintID)

	_, project, err := s.sprintContext(ctx, sprintID)
	if err != nil {
		return nil, err
	}
	medium, err := s.provider.WorkItems().ListBySprint(ctx, sprintID, store.WorkItemFilter{Granularity: domain.GranularityMedium})
	if err != nil {
		return nil, fmt.Errorf("failed to list medium items: %w", err)
	}

	result := &SplitResult{Created: make([]*domain.WorkItem, 0)}
	if len(medium) == 0 {
		result.Superseded, err = s.provider.WorkItems().SupersedeByGranularity(ctx, sprintID, domain.GranularityFine, s.now())
		if err != nil {
			return nil, fmt.Errorf("failed to supersede fine items: %w", err)
		}
		log.InfoContext(ctx, "no medium items to split", "superseded", result.Superseded)
		return result, nil
	}

	text, err := s.prompts.Split(prompt.SplitInput{Items: medium, DetailLevel: project.DetailLevel})
	if err != nil {
		return nil, err
	}

	var resp splitResponse
	err = s.invoker.Invoke(ctx, invoker.Call{
		Intent:    generation.IntentTaskSplit,
		Prompt:    text,
		Refs:      itemRefs(medium),
		ProjectID: &project.ID,
		JobID:     jobID,
		StepType:  string(generation.IntentTaskSplit),
	}, &resp)
	if err != nil {
		return nil, err
	}

	parents := make(map[uuid.UUID]*domain.WorkItem, len(medium))
	for _, it := range medium {
		parents[it.ID] = it
	}

	err = s.provider.InTx(ctx, func(ctx context.Context, tx store.Provider) error {
		superseded, err := tx.WorkItems().SupersedeByGranularity(ctx, sprintID, domain.GranularityFine, s.now())
		if err != nil {
			return err
		}
		result.Superseded = superseded

		next, err := tx.WorkItems().MaxOrderIndex(ctx, sprintID)
		if err != nil {
			return err
		}

		used := make([]*domain.WorkItem, 0)
		usedSet := make(map[uuid.UUID]struct{})
		for _, t := range resp.Tasks {
			parentID, err := uuid.Parse(t.ParentTaskID)
			if err != nil {
				continue
			}
			parent, ok := parents[parentID]
			if !ok {
				log.WarnContext(ctx, "ignoring fine task for unknown parent", "parent_task_id", t.ParentTaskID)
				continue
			}
			next++
			child, err := domain.NewFineWorkItem(parent, t.Title, t.Description, t.AcceptanceCriteria, t.EstimateSP, next)
			if err != nil {
				return fmt.Errorf("invalid fine task %q: %w", t.Title, err)
			}
			result.Created = append(result.Created, child)
			if _, seen := usedSet[parentID]; !seen {
				usedSet[parentID] = struct{}{}
				used = append(used, parent)
			}
		}

		if len(result.Created) > 0 {
			if err := tx.WorkItems().CreateBatch(ctx, result.Created); err != nil {
				return err
			}
		}

		for _, parent := range used {
			if parent.Status == domain.WorkItemStatusStale {
				result.StaleParents++
				continue
			}
			if err := parent.ChangeStatus(domain.WorkItemStatusStale); err != nil {
				if errors.Is(err, domain.ErrInvalidTransition) {
					log.WarnContext(ctx, "parent cannot be marked stale", "work_item_id", parent.ID, "status", parent.Status)
					continue
				}
				return err
			}
			if err := tx.WorkItems().Update(ctx, parent); err != nil {
				return err
			}
			result.StaleParents++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store split: %w", err)
	}

	log.InfoContext(ctx, "split work items",
		"created", len(result.Created),
		"superseded", result.Superseded,
		"stale_parents", result.StaleParents)
	return result, nil
}

func itemRefs(items []*domain.WorkItem) []string {
	refs := make([]string, len(items))
	for i, it := range items {
		refs[i] = it.ID.String()
	}
	return refs
}
