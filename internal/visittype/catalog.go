// Package visittype is the read-only catalog of bookable visit kinds and their durations.
package visittype

import (
	"context"
	"strings"
	"time"

	"github.com/wolfman30/medpractice-booking/internal/scheduling"
)

// Seeded visit kinds.
const (
	FirstVisit = "FIRST_VISIT"
	Control    = "CONTROL"
)

// VisitType is a named appointment category with a fixed length.
type VisitType struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"durationMinutes"`
}

func (v VisitType) Duration() time.Duration {
	return time.Duration(v.DurationMinutes) * time.Minute
}

// IsFirstVisit reports whether booking this kind requires no prior reservation with the doctor.
func (v VisitType) IsFirstVisit() bool {
	return v.Name == FirstVisit
}

// Catalog resolves visit types by name. Unknown names yield scheduling.ErrUnknownVisitType.
type Catalog interface {
	FindByName(ctx context.Context, name string) (*VisitType, error)
	List(ctx context.Context) ([]VisitType, error)
}

// NormalizeName upper-cases and trims a visit type name from a request.
func NormalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// StaticCatalog serves a fixed set of visit types, used when no database is configured and in tests.
type StaticCatalog struct {
	types []VisitType
}

func NewStaticCatalog(types ...VisitType) *StaticCatalog {
	if len(types) == 0 {
		types = DefaultTypes()
	}
	return &StaticCatalog{types: types}
}

// DefaultTypes mirrors the rows seeded by the initial migration.
func DefaultTypes() []VisitType {
	return []VisitType{
		{ID: 1, Name: FirstVisit, DurationMinutes: 60},
		{ID: 2, Name: Control, DurationMinutes: 30},
	}
}

func (c *StaticCatalog) FindByName(_ context.Context, name string) (*VisitType, error) {
	name = NormalizeName(name)
	for _, vt := range c.types {
		if vt.Name == name {
			found := vt
			return &found, nil
		}
	}
	return nil, scheduling.ErrUnknownVisitType
}

func (c *StaticCatalog) List(context.Context) ([]VisitType, error) {
	return append([]VisitType(nil), c.types...), nil
}
