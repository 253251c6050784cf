package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for PromptTemplate
var (
	ErrEmptyTemplateID     = errors.New("template ID cannot be empty")
	ErrEmptyTemplateArcKey = errors.New("template arc key cannot be empty")
)

// PromptTemplate drives conversation generation. ArcKey declares which
// emotional arc the template is compatible with; Tier optionally narrows a
// template to one quality tier. Batch items that carry no explicit template
// are matched by ArcKey, then ArcKey+Tier, then any tier.
type PromptTemplate struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	ArcKey    string    `json:"arc_key"`
	Tier      string    `json:"tier,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the PromptTemplate has valid data.
func (t *PromptTemplate) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTemplateID
	}

	if t.ArcKey == "" {
		return ErrEmptyTemplateArcKey
	}

	return nil
}
