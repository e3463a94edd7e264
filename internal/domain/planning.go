package domain

import (
	"time"

	"github.com/google/uuid"
)

// DetailLevel controls how fine-grained generated plans should be
type DetailLevel string

// Supported detail levels
const (
	DetailLevelLow    DetailLevel = "low"
	DetailLevelNormal DetailLevel = "normal"
	DetailLevelHigh   DetailLevel = "high"
)

// Project owns planning units, sprints and quality constraints.
type Project struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	DetailLevel DetailLevel `json:"detail_level"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Sprint is a time-box that planning units are assigned to.
type Sprint struct {
	ID              uuid.UUID   `json:"id"`
	ProjectID       uuid.UUID   `json:"project_id"`
	Index           int         `json:"index"`
	Name            string      `json:"name"`
	Goals           []string    `json:"goals,omitempty"`
	PlanningUnitIDs []uuid.UUID `json:"planning_unit_ids"`
}

// UnitCategory groups planning units for dependency derivation
type UnitCategory string

// Known planning unit categories
const (
	UnitCategoryPlatform UnitCategory = "platform"
	UnitCategoryFeature  UnitCategory = "feature"
	UnitCategoryQuality  UnitCategory = "quality"
)

// PlanningUnit is an epic: a grouping of related work inside a project.
type PlanningUnit struct {
	ID          uuid.UUID    `json:"id"`
	ProjectID   uuid.UUID    `json:"project_id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    UnitCategory `json:"category"`
}

// PlanningUnitDependency records that UnitID depends on DependsOnID.
type PlanningUnitDependency struct {
	UnitID      uuid.UUID `json:"unit_id"`
	DependsOnID uuid.UUID `json:"depends_on_id"`
}

// QualityKind distinguishes definition-of-done entries from non-functional requirements
type QualityKind string

// Quality constraint kinds
const (
	QualityKindDoD QualityKind = "dod"
	QualityKindNFR QualityKind = "nfr"
)

// QualityConstraint is a project-level DoD or NFR entry used as refinement context.
type QualityConstraint struct {
	ID        uuid.UUID   `json:"id"`
	ProjectID uuid.UUID   `json:"project_id"`
	Kind      QualityKind `json:"kind"`
	Text      string      `json:"text"`
}
