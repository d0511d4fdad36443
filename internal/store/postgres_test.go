package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/mapexport/internal/core"
)

func TestTranslate(t *testing.T) {
	assert.ErrorIs(t, translate(pgx.ErrNoRows), core.ErrTemplateNotFound)

	dup := &pgconn.PgError{Code: "23505", ConstraintName: "mapping_templates_target_key_name_key"}
	err := translate(dup)
	assert.ErrorIs(t, err, core.ErrTemplateExists)
	assert.Contains(t, err.Error(), "mapping_templates_target_key_name_key")

	other := errors.New("connection reset")
	assert.Equal(t, other, translate(other))

	fk := &pgconn.PgError{Code: "23503"}
	assert.Equal(t, error(fk), translate(fk))
}

func TestNonNil(t *testing.T) {
	assert.Equal(t, []string{}, nonNil(nil))
	assert.Equal(t, []string{"a"}, nonNil([]string{"a"}))
}

// TestPostgres_CRUD runs against a real database when
// MAPEXPORT_TEST_DATABASE_URL is set.
func TestPostgres_CRUD(t *testing.T) {
	url := os.Getenv("MAPEXPORT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("MAPEXPORT_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	defer pool.Close()

	p := NewPostgres(pool)
	require.NoError(t, p.EnsureSchema(ctx))

	target := "test_" + uuid.NewString()[:8]
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM mapping_templates WHERE target_key = $1`, target)
	})

	in := sampleTemplate(target, "Weekly")
	created, err := p.CreateTemplate(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, in.ID, created.ID)
	assert.Equal(t, in.Config.Mapping, created.Config.Mapping)
	assert.Equal(t, in.SourceColumns, created.SourceColumns)
	assert.True(t, in.CreatedAt.Equal(created.CreatedAt))

	_, err = p.CreateTemplate(ctx, sampleTemplate(target, "Weekly"))
	assert.ErrorIs(t, err, core.ErrTemplateExists)

	id := uuid.MustParse(in.ID)
	got, err := p.GetTemplate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Weekly", got.Name)
	require.NotNil(t, got.Config.ActiveFilter)

	got.Name = "Monthly"
	got.UpdatedAt = got.UpdatedAt.Add(time.Hour)
	updated, err := p.UpdateTemplate(ctx, *got)
	require.NoError(t, err)
	assert.Equal(t, "Monthly", updated.Name)

	list, err := p.ListTemplates(ctx, target)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, p.DeleteTemplate(ctx, id))
	_, err = p.GetTemplate(ctx, id)
	assert.ErrorIs(t, err, core.ErrTemplateNotFound)
	assert.ErrorIs(t, p.DeleteTemplate(ctx, id), core.ErrTemplateNotFound)
}
