package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/mapexport/internal/core"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS mapping_templates (
    id             UUID PRIMARY KEY,
    target_key     TEXT NOT NULL,
    name           TEXT NOT NULL,
    config         JSONB NOT NULL,
    source_columns TEXT[] NOT NULL DEFAULT '{}',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (target_key, name)
)`

const templateColumns = `id::text, target_key, name, config, source_columns, created_at, updated_at`

// Postgres stores templates in the mapping_templates table.
type Postgres struct {
	db DBTX
}

var _ core.TemplateStore = (*Postgres)(nil)

// NewPostgres returns a store backed by db, usually a *pgxpool.Pool.
func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the templates table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create mapping_templates: %w", err)
	}
	return nil
}

func (p *Postgres) CreateTemplate(ctx context.Context, t core.MappingTemplate) (*core.MappingTemplate, error) {
	cfg, err := json.Marshal(t.Config)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}

	row := p.db.QueryRow(ctx, `
		INSERT INTO mapping_templates (id, target_key, name, config, source_columns, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)
		RETURNING `+templateColumns,
		t.ID, t.TargetKey, t.Name, cfg, nonNil(t.SourceColumns), t.CreatedAt, t.UpdatedAt,
	)
	out, err := scanTemplate(row)
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (p *Postgres) GetTemplate(ctx context.Context, id uuid.UUID) (*core.MappingTemplate, error) {
	row := p.db.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM mapping_templates WHERE id = $1::uuid`,
		id.String(),
	)
	out, err := scanTemplate(row)
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (p *Postgres) ListTemplates(ctx context.Context, targetKey string) ([]core.MappingTemplate, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+templateColumns+` FROM mapping_templates WHERE target_key = $1 ORDER BY updated_at DESC`,
		targetKey,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []core.MappingTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *t)
	}
	return list, rows.Err()
}

func (p *Postgres) UpdateTemplate(ctx context.Context, t core.MappingTemplate) (*core.MappingTemplate, error) {
	cfg, err := json.Marshal(t.Config)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}

	row := p.db.QueryRow(ctx, `
		UPDATE mapping_templates
		SET name = $2, config = $3, source_columns = $4, updated_at = $5
		WHERE id = $1::uuid
		RETURNING `+templateColumns,
		t.ID, t.Name, cfg, nonNil(t.SourceColumns), t.UpdatedAt,
	)
	out, err := scanTemplate(row)
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (p *Postgres) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM mapping_templates WHERE id = $1::uuid`, id.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrTemplateNotFound
	}
	return nil
}

func scanTemplate(row pgx.Row) (*core.MappingTemplate, error) {
	var (
		t         core.MappingTemplate
		cfg       []byte
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&t.ID, &t.TargetKey, &t.Name, &cfg, &t.SourceColumns, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cfg, &t.Config); err != nil {
		return nil, fmt.Errorf("decode config of template %s: %w", t.ID, err)
	}
	t.CreatedAt = createdAt.UTC()
	t.UpdatedAt = updatedAt.UTC()
	return &t, nil
}

// translate maps driver errors onto the core sentinels.
func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrTemplateNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", core.ErrTemplateExists, pgErr.ConstraintName)
	}
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
