package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/promtec/orientation-api/internal/models"
)

// SchoolRepository handles persistence of schools.
type SchoolRepository struct {
	db *sqlx.DB
}

// NewSchoolRepository constructs the repository.
func NewSchoolRepository(db *sqlx.DB) *SchoolRepository {
	return &SchoolRepository{db: db}
}

// FindByID returns a school by ID.
func (r *SchoolRepository) FindByID(ctx context.Context, id string) (*models.School, error) {
	var school models.School
	if err := r.db.GetContext(ctx, &school, `SELECT id, name, created_at FROM schools WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &school, nil
}

// FindByName returns a school by its unique name.
func (r *SchoolRepository) FindByName(ctx context.Context, name string) (*models.School, error) {
	var school models.School
	if err := r.db.GetContext(ctx, &school, `SELECT id, name, created_at FROM schools WHERE name = $1`, name); err != nil {
		return nil, err
	}
	return &school, nil
}

// EnsureByName returns the school with the given name, creating it when it
// does not exist yet. The insert races safely on the unique name constraint.
func (r *SchoolRepository) EnsureByName(ctx context.Context, name string) (*models.School, error) {
	const query = `INSERT INTO schools (id, name) VALUES ($1, $2)
        ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
        RETURNING id, name, created_at`
	var school models.School
	if err := r.db.GetContext(ctx, &school, query, uuid.NewString(), name); err != nil {
		return nil, fmt.Errorf("ensure school: %w", err)
	}
	return &school, nil
}

// List returns all schools ordered by name.
func (r *SchoolRepository) List(ctx context.Context) ([]models.School, error) {
	var schools []models.School
	if err := r.db.SelectContext(ctx, &schools, `SELECT id, name, created_at FROM schools ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list schools: %w", err)
	}
	return schools, nil
}
