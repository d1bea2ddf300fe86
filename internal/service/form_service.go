package service

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"leadflow/internal/model"
	"leadflow/internal/repository"
)

// CatalogFile is the YAML document read by the seed command
type CatalogFile struct {
	Forms []*model.Form `yaml:"forms"`
}

// ParseCatalog decodes and validates a YAML form catalog
func ParseCatalog(data []byte) ([]*model.Form, error) {
	var file CatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(file.Forms) == 0 {
		return nil, fmt.Errorf("catalog defines no forms")
	}
	seen := map[string]bool{}
	for _, f := range file.Forms {
		if err := ValidateForm(f); err != nil {
			return nil, err
		}
		if seen[f.ID] {
			return nil, fmt.Errorf("duplicate form id %q", f.ID)
		}
		seen[f.ID] = true
	}
	return file.Forms, nil
}

// ValidateForm checks question ids, texts, rubrics and thresholds
func ValidateForm(f *model.Form) error {
	if f == nil || strings.TrimSpace(f.ID) == "" {
		return fmt.Errorf("form id is required")
	}
	rules := f.Rules.Effective()
	if rules.DisqualifyScore >= rules.QualifyScore {
		return fmt.Errorf("form %s: disqualify_score %d must be below qualify_score %d",
			f.ID, rules.DisqualifyScore, rules.QualifyScore)
	}
	if rules.MinQuestions < 0 {
		return fmt.Errorf("form %s: min_questions must not be negative", f.ID)
	}

	ids := map[string]bool{}
	for i, q := range f.Questions {
		if strings.TrimSpace(q.ID) == "" {
			return fmt.Errorf("form %s: question %d has no id", f.ID, i)
		}
		if ids[q.ID] {
			return fmt.Errorf("form %s: duplicate question id %q", f.ID, q.ID)
		}
		ids[q.ID] = true
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("form %s: question %s has no text", f.ID, q.ID)
		}
		if _, err := ParseRubric(q.ScoringRubric); err != nil {
			return fmt.Errorf("form %s: question %s: %w", f.ID, q.ID, err)
		}
	}
	return nil
}

// FormService reads and imports question catalogs
type FormService struct {
	formRepo repository.FormRepo
}

// NewFormService creates a new form service
func NewFormService(formRepo repository.FormRepo) *FormService {
	return &FormService{
		formRepo: formRepo,
	}
}

// GetByID retrieves a form by ID
func (s *FormService) GetByID(ctx context.Context, id string) (*model.Form, error) {
	form, err := s.formRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if form == nil {
		return nil, ErrFormNotFound
	}
	return form, nil
}

// List retrieves all forms
func (s *FormService) List(ctx context.Context) ([]*model.Form, error) {
	return s.formRepo.List(ctx)
}

// Import validates a YAML catalog and upserts every form in it
func (s *FormService) Import(ctx context.Context, data []byte) ([]*model.Form, error) {
	forms, err := ParseCatalog(data)
	if err != nil {
		return nil, err
	}
	for _, f := range forms {
		if err := s.formRepo.Upsert(ctx, f); err != nil {
			return nil, fmt.Errorf("save form %s: %w", f.ID, err)
		}
	}
	return forms, nil
}
