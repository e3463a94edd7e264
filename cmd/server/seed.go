package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"github.com/phrazzld/sprint-planner-api/internal/store"
	"gopkg.in/yaml.v3"
)

// seedFile is the YAML layout read by the seed command. Sprints name their
// planning units by key.
type seedFile struct {
	Project struct {
		Name        string `yaml:"name"         validate:"required"`
		DetailLevel string `yaml:"detail_level" validate:"omitempty,oneof=low normal high"`
	} `yaml:"project"`
	Units []struct {
		Key         string `yaml:"key"         validate:"required"`
		Name        string `yaml:"name"        validate:"required"`
		Description string `yaml:"description"`
		Category    string `yaml:"category"    validate:"omitempty,oneof=platform feature quality"`
	} `yaml:"units" validate:"dive"`
	Constraints []struct {
		Kind string `yaml:"kind" validate:"required,oneof=dod nfr"`
		Text string `yaml:"text" validate:"required"`
	} `yaml:"constraints" validate:"dive"`
	Sprints []struct {
		Name  string   `yaml:"name"  validate:"required"`
		Goals []string `yaml:"goals"`
		Units []string `yaml:"units" validate:"required,min=1"`
	} `yaml:"sprints" validate:"dive"`
}

// seedResult reports the IDs created by a seed run.
type seedResult struct {
	ProjectID uuid.UUID            `json:"project_id"`
	Units     map[string]uuid.UUID `json:"units"`
	SprintIDs []uuid.UUID          `json:"sprint_ids"`
}

// parseSeed decodes and validates seed YAML.
func parseSeed(data []byte) (*seedFile, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := validator.New().Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid seed file: %w", err)
	}

	keys := make(map[string]struct{}, len(f.Units))
	for _, u := range f.Units {
		if _, dup := keys[u.Key]; dup {
			return nil, fmt.Errorf("invalid seed file: duplicate unit key %q", u.Key)
		}
		keys[u.Key] = struct{}{}
	}
	for _, sp := range f.Sprints {
		for _, key := range sp.Units {
			if _, ok := keys[key]; !ok {
				return nil, fmt.Errorf("invalid seed file: sprint %q names unknown unit %q", sp.Name, key)
			}
		}
	}
	return &f, nil
}

// seed creates everything in f inside one transaction.
func seed(ctx context.Context, provider store.Provider, f *seedFile) (*seedResult, error) {
	detail := domain.DetailLevel(f.Project.DetailLevel)
	if detail == "" {
		detail = domain.DetailLevelNormal
	}
	project := &domain.Project{
		ID:          uuid.New(),
		Name:        f.Project.Name,
		DetailLevel: detail,
		CreatedAt:   time.Now().UTC(),
	}
	result := &seedResult{
		ProjectID: project.ID,
		Units:     make(map[string]uuid.UUID, len(f.Units)),
		SprintIDs: make([]uuid.UUID, 0, len(f.Sprints)),
	}

	err := provider.InTx(ctx, func(ctx context.Context, tx store.Provider) error {
		if err := tx.Planning().CreateProject(ctx, project); err != nil {
			return fmt.Errorf("failed to create project: %w", err)
		}

		for _, u := range f.Units {
			category := domain.UnitCategory(u.Category)
			if category == "" {
				category = domain.UnitCategoryFeature
			}
			unit := &domain.PlanningUnit{
				ID:          uuid.New(),
				ProjectID:   project.ID,
				Name:        u.Name,
				Description: u.Description,
				Category:    category,
			}
			if err := tx.Planning().CreatePlanningUnit(ctx, unit); err != nil {
				return fmt.Errorf("failed to create planning unit %q: %w", u.Key, err)
			}
			result.Units[u.Key] = unit.ID
		}

		for _, c := range f.Constraints {
			q := &domain.QualityConstraint{
				ID:        uuid.New(),
				ProjectID: project.ID,
				Kind:      domain.QualityKind(c.Kind),
				Text:      c.Text,
			}
			if err := tx.Planning().CreateQualityConstraint(ctx, q); err != nil {
				return fmt.Errorf("failed to create quality constraint: %w", err)
			}
		}

		for i, sp := range f.Sprints {
			unitIDs := make([]uuid.UUID, 0, len(sp.Units))
			for _, key := range sp.Units {
				unitIDs = append(unitIDs, result.Units[key])
			}
			sprint := &domain.Sprint{
				ID:              uuid.New(),
				ProjectID:       project.ID,
				Index:           i + 1,
				Name:            sp.Name,
				Goals:           sp.Goals,
				PlanningUnitIDs: unitIDs,
			}
			if err := tx.Planning().CreateSprint(ctx, sprint); err != nil {
				return fmt.Errorf("failed to create sprint %q: %w", sp.Name, err)
			}
			result.SprintIDs = append(result.SprintIDs, sprint.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// seedFromFile reads, validates and applies a seed file.
func (app *application) seedFromFile(ctx context.Context, path string) (*seedResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	f, err := parseSeed(data)
	if err != nil {
		return nil, err
	}
	result, err := seed(ctx, app.provider, f)
	if err != nil {
		return nil, err
	}
	app.logger.Info("seeded project",
		"project_id", result.ProjectID,
		"units", len(result.Units),
		"sprints", len(result.SprintIDs))
	return result, nil
}
