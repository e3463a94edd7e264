package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/phrazzld/sprint-planner-api/internal/domain"
	"gopkg.in/yaml.v3"
)

// ErrInvalidTemplate is returned when a template cannot be loaded or rendered.
var ErrInvalidTemplate = errors.New("invalid prompt template")

// DraftInput is the context for one Draft call: a single planning unit.
type DraftInput struct {
	Unit        *domain.PlanningUnit
	Sprint      *domain.Sprint
	DetailLevel domain.DetailLevel
}

// RefineInput is the context for the Refine call over a sprint's coarse items.
type RefineInput struct {
	Items       []*domain.WorkItem
	DoD         []string
	NFR         []string
	DetailLevel domain.DetailLevel
}

// SplitInput is the context for the Split call over a sprint's medium items.
type SplitInput struct {
	Items       []*domain.WorkItem
	DetailLevel domain.DetailLevel
}

// Builder renders stage prompts.
type Builder interface {
	Draft(in DraftInput) (string, error)
	Refine(in RefineInput) (string, error)
	Split(in SplitInput) (string, error)
}

// Templates holds the template source of each stage. Empty fields fall back
// to the built-in wording.
type Templates struct {
	Draft  string `yaml:"draft"`
	Refine string `yaml:"refine"`
	Split  string `yaml:"split"`
}

// TemplateBuilder implements Builder with text/template.
type TemplateBuilder struct {
	draft  *template.Template
	refine *template.Template
	split  *template.Template
}

var _ Builder = (*TemplateBuilder)(nil)

var funcs = template.FuncMap{
	"detailHint": DetailHint,
	"join":       strings.Join,
	"orNone": func(lines []string) string {
		if len(lines) == 0 {
			return "none"
		}
		return strings.Join(lines, "; ")
	},
}

// NewTemplateBuilder parses t, using the defaults for empty stages.
func NewTemplateBuilder(t Templates) (*TemplateBuilder, error) {
	sources := map[string]*string{"draft": &t.Draft, "refine": &t.Refine, "split": &t.Split}
	defaults := DefaultTemplates()
	fallback := map[string]string{"draft": defaults.Draft, "refine": defaults.Refine, "split": defaults.Split}

	parsed := make(map[string]*template.Template, len(sources))
	for name, src := range sources {
		if strings.TrimSpace(*src) == "" {
			*src = fallback[name]
		}
		tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(*src)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, name, err)
		}
		parsed[name] = tmpl
	}

	return &TemplateBuilder{
		draft:  parsed["draft"],
		refine: parsed["refine"],
		split:  parsed["split"],
	}, nil
}

// LoadFile builds a TemplateBuilder from a YAML file with optional draft,
// refine and split keys. An empty path yields the defaults.
func LoadFile(path string) (*TemplateBuilder, error) {
	if path == "" {
		return NewTemplateBuilder(Templates{})
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrInvalidTemplate, path, err)
	}

	var t Templates
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidTemplate, path, err)
	}
	return NewTemplateBuilder(t)
}

func (b *TemplateBuilder) Draft(in DraftInput) (string, error) {
	if in.Unit == nil || in.Sprint == nil {
		return "", fmt.Errorf("%w: draft prompt needs a unit and a sprint", ErrInvalidTemplate)
	}
	return render(b.draft, in)
}

func (b *TemplateBuilder) Refine(in RefineInput) (string, error) {
	return render(b.refine, in)
}

func (b *TemplateBuilder) Split(in SplitInput) (string, error) {
	return render(b.split, in)
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, t.Name(), err)
	}
	return buf.String(), nil
}

// DetailHint describes the granularity expected at a detail level.
func DetailHint(level domain.DetailLevel) string {
	switch level {
	case domain.DetailLevelLow:
		return "fewer, high-level items"
	case domain.DetailLevelHigh:
		return "more detailed, smaller items"
	default:
		return "balanced level of detail"
	}
}
