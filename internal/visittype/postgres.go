package visittype

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/medpractice-booking/internal/scheduling"
	"github.com/wolfman30/medpractice-booking/internal/store/postgres"
)

// PostgresCatalog reads the visit_types table.
type PostgresCatalog struct {
	db postgres.Querier
}

func NewPostgresCatalog(pool *pgxpool.Pool) *PostgresCatalog {
	if pool == nil {
		panic("visittype: pgx pool required")
	}
	return &PostgresCatalog{db: pool}
}

func newPostgresCatalogWithExec(exec postgres.Querier) *PostgresCatalog {
	if exec == nil {
		panic("visittype: exec required")
	}
	return &PostgresCatalog{db: exec}
}

func (c *PostgresCatalog) FindByName(ctx context.Context, name string) (*VisitType, error) {
	query := `SELECT id, name, duration_minutes FROM visit_types WHERE name = $1`
	var vt VisitType
	if err := c.db.QueryRow(ctx, query, NormalizeName(name)).Scan(&vt.ID, &vt.Name, &vt.DurationMinutes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, scheduling.ErrUnknownVisitType
		}
		return nil, fmt.Errorf("visittype: find by name: %w", err)
	}
	return &vt, nil
}

func (c *PostgresCatalog) List(ctx context.Context) ([]VisitType, error) {
	rows, err := c.db.Query(ctx, `SELECT id, name, duration_minutes FROM visit_types ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("visittype: list: %w", err)
	}
	defer rows.Close()

	var types []VisitType
	for rows.Next() {
		var vt VisitType
		if err := rows.Scan(&vt.ID, &vt.Name, &vt.DurationMinutes); err != nil {
			return nil, fmt.Errorf("visittype: scan: %w", err)
		}
		types = append(types, vt)
	}
	return types, rows.Err()
}
