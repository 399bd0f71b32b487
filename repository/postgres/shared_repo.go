package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/guild-designer/domain"
	"github.com/fastygo/guild-designer/repository"
)

type activeRepository struct {
	pool *pgxpool.Pool
}

// NewActiveRepository returns a Postgres-backed ActiveRepository.
func NewActiveRepository(pool *pgxpool.Pool) repository.ActiveRepository {
	return &activeRepository{pool: pool}
}

func (r *activeRepository) GetActive(ctx context.Context, guildID string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT template_id FROM guild_active_templates WHERE guild_id = $1`, guildID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return id, err
}

func (r *activeRepository) SetActive(ctx context.Context, guildID string, id int64) error {
	const query = `
	INSERT INTO guild_active_templates (guild_id, template_id, updated_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (guild_id) DO UPDATE
	SET template_id = EXCLUDED.template_id,
		updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query, guildID, id)
	return err
}

func (r *activeRepository) ClearActive(ctx context.Context, guildID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM guild_active_templates WHERE guild_id = $1`, guildID)
	return err
}

type sharedRepository struct {
	pool *pgxpool.Pool
}

// NewSharedRepository returns a Postgres-backed SharedRepository. The structure is kept as
// a JSONB document since shared copies are never edited in place.
func NewSharedRepository(pool *pgxpool.Pool) repository.SharedRepository {
	return &sharedRepository{pool: pool}
}

const sharedColumns = `id, share_code, source_guild_id, name, description, structure, created_at`

func (r *sharedRepository) List(ctx context.Context) ([]domain.SharedTemplate, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+sharedColumns+` FROM shared_templates ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SharedTemplate
	for rows.Next() {
		s, err := scanShared(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *sharedRepository) Get(ctx context.Context, id int64) (*domain.SharedTemplate, error) {
	return scanShared(r.pool.QueryRow(ctx, `SELECT `+sharedColumns+` FROM shared_templates WHERE id = $1`, id))
}

func (r *sharedRepository) Create(ctx context.Context, s *domain.SharedTemplate) (*domain.SharedTemplate, error) {
	if s == nil || s.ShareCode == "" {
		return nil, domain.ErrInvalidPayload
	}
	structure, err := json.Marshal(s.Structure)
	if err != nil {
		return nil, err
	}

	const query = `
	INSERT INTO shared_templates (share_code, source_guild_id, name, description, structure)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id, created_at
	`
	out := *s
	if err := r.pool.QueryRow(ctx, query,
		s.ShareCode,
		s.SourceGuildID,
		s.Name,
		s.Description,
		structure,
	).Scan(&out.ID, &out.CreatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *sharedRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM shared_templates WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSharedTemplateNotFound
	}
	return nil
}

func (r *sharedRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM shared_templates WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanShared(row pgx.Row) (*domain.SharedTemplate, error) {
	var (
		s         domain.SharedTemplate
		structure []byte
	)
	if err := row.Scan(
		&s.ID,
		&s.ShareCode,
		&s.SourceGuildID,
		&s.Name,
		&s.Description,
		&structure,
		&s.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSharedTemplateNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(structure, &s.Structure); err != nil {
		return nil, err
	}
	return &s, nil
}
