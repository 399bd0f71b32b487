package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/guild-designer/domain"
	"github.com/fastygo/guild-designer/repository"
)

type templateRepository struct {
	pool *pgxpool.Pool
}

// NewTemplateRepository returns a Postgres-backed implementation of TemplateRepository.
func NewTemplateRepository(pool *pgxpool.Pool) repository.TemplateRepository {
	return &templateRepository{pool: pool}
}

const templateColumns = `id, guild_id, name, description, is_initial_snapshot, created_at, updated_at`

func (r *templateRepository) List(ctx context.Context, guildID string) ([]domain.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE guild_id = $1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []domain.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

func (r *templateRepository) Get(ctx context.Context, guildID string, id int64) (*domain.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE id = $1 AND guild_id = $2`
	t, err := scanTemplate(r.pool.QueryRow(ctx, query, id, guildID))
	if err != nil {
		return nil, err
	}
	if err := loadStructure(ctx, r.pool, t); err != nil {
		return nil, err
	}
	t.Normalize()
	return t, nil
}

func (r *templateRepository) Create(ctx context.Context, t *domain.Template) (*domain.Template, error) {
	if t == nil || t.GuildID == "" {
		return nil, domain.ErrInvalidPayload
	}

	stored := t.Clone()
	stored.Normalize()

	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		const insertTemplate = `
		INSERT INTO templates (guild_id, name, description, is_initial_snapshot)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
		`
		if err := tx.QueryRow(ctx, insertTemplate,
			stored.GuildID,
			stored.Name,
			stored.Description,
			stored.IsInitialSnapshot,
		).Scan(&stored.ID, &stored.CreatedAt, &stored.UpdatedAt); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrSnapshotExists
			}
			return err
		}

		catIDs := make(map[int64]int64, len(stored.Categories))
		for i := range stored.Categories {
			c := &stored.Categories[i]
			id, err := insertCategory(ctx, tx, stored.ID, c)
			if err != nil {
				return err
			}
			catIDs[c.ID] = id
			c.ID = id
		}
		for i := range stored.Channels {
			ch := &stored.Channels[i]
			if ch.ParentCategoryID != nil {
				mapped, ok := catIDs[*ch.ParentCategoryID]
				if !ok {
					return domain.WrapError(domain.ErrCodeInvalid, "unknown parent category", fmt.Errorf("category %d", *ch.ParentCategoryID))
				}
				ch.ParentCategoryID = &mapped
			}
			id, err := insertChannel(ctx, tx, stored.ID, ch)
			if err != nil {
				return err
			}
			ch.ID = id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *templateRepository) ReplaceStructure(ctx context.Context, guildID string, id int64, t *domain.Template) (map[string]int64, error) {
	next := t.Clone()
	next.Normalize()
	idMap := make(map[string]int64)

	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		var locked int64
		err := tx.QueryRow(ctx, `SELECT id FROM templates WHERE id = $1 AND guild_id = $2 FOR UPDATE`, id, guildID).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrTemplateNotFound
			}
			return err
		}

		ownedCats, err := ownedIDs(ctx, tx, `SELECT id FROM template_categories WHERE template_id = $1`, id)
		if err != nil {
			return err
		}
		ownedChans, err := ownedIDs(ctx, tx, `SELECT id FROM template_channels WHERE template_id = $1`, id)
		if err != nil {
			return err
		}

		catIDs := make(map[int64]int64)
		keepCats := make([]int64, 0, len(next.Categories))
		for i := range next.Categories {
			c := &next.Categories[i]
			switch {
			case c.ID < 0:
				newID, err := insertCategory(ctx, tx, id, c)
				if err != nil {
					return err
				}
				idMap[domain.CategoryRef(c.ID).String()] = newID
				catIDs[c.ID] = newID
				c.ID = newID
			case ownedCats[c.ID]:
				const update = `UPDATE template_categories SET name = $2, position = $3 WHERE id = $1`
				if _, err := tx.Exec(ctx, update, c.ID, c.Name, c.Position); err != nil {
					return err
				}
			default:
				return domain.WrapError(domain.ErrCodeInvalid, "category belongs to another template", fmt.Errorf("category %d", c.ID))
			}
			keepCats = append(keepCats, c.ID)
		}

		keepChans := make([]int64, 0, len(next.Channels))
		for i := range next.Channels {
			ch := &next.Channels[i]
			if p := ch.ParentCategoryID; p != nil && *p < 0 {
				mapped := catIDs[*p]
				ch.ParentCategoryID = &mapped
			}
			switch {
			case ch.ID < 0:
				newID, err := insertChannel(ctx, tx, id, ch)
				if err != nil {
					return err
				}
				idMap[domain.ChannelRef(ch.ID).String()] = newID
				ch.ID = newID
			case ownedChans[ch.ID]:
				const update = `
				UPDATE template_channels
				SET parent_category_id = $2, name = $3, kind = $4, position = $5
				WHERE id = $1
				`
				if _, err := tx.Exec(ctx, update, ch.ID, ch.ParentCategoryID, ch.Name, string(ch.Kind), ch.Position); err != nil {
					return err
				}
			default:
				return domain.WrapError(domain.ErrCodeInvalid, "channel belongs to another template", fmt.Errorf("channel %d", ch.ID))
			}
			keepChans = append(keepChans, ch.ID)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM template_channels WHERE template_id = $1 AND NOT (id = ANY($2))`, id, keepChans); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM template_categories WHERE template_id = $1 AND NOT (id = ANY($2))`, id, keepCats); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE templates SET updated_at = NOW() WHERE id = $1`, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return idMap, nil
}

func (r *templateRepository) UpdateMetadata(ctx context.Context, guildID string, id int64, name, description string) error {
	const query = `
	UPDATE templates
	SET name = $3,
		description = $4,
		updated_at = NOW()
	WHERE id = $1 AND guild_id = $2
	`
	tag, err := r.pool.Exec(ctx, query, id, guildID, name, description)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTemplateNotFound
	}
	return nil
}

func (r *templateRepository) Delete(ctx context.Context, guildID string, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM templates WHERE id = $1 AND guild_id = $2`, id, guildID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTemplateNotFound
	}
	return nil
}

func insertCategory(ctx context.Context, tx pgx.Tx, templateID int64, c *domain.Category) (int64, error) {
	const query = `
	INSERT INTO template_categories (template_id, name, position)
	VALUES ($1, $2, $3)
	RETURNING id
	`
	var id int64
	err := tx.QueryRow(ctx, query, templateID, c.Name, c.Position).Scan(&id)
	return id, err
}

func insertChannel(ctx context.Context, tx pgx.Tx, templateID int64, ch *domain.Channel) (int64, error) {
	const query = `
	INSERT INTO template_channels (template_id, parent_category_id, name, kind, position)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id
	`
	var id int64
	err := tx.QueryRow(ctx, query, templateID, ch.ParentCategoryID, ch.Name, string(ch.Kind), ch.Position).Scan(&id)
	return id, err
}

func ownedIDs(ctx context.Context, tx pgx.Tx, query string, templateID int64) (map[int64]bool, error) {
	rows, err := tx.Query(ctx, query, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func loadStructure(ctx context.Context, q querier, t *domain.Template) error {
	rows, err := q.Query(ctx, `SELECT id, name, position FROM template_categories WHERE template_id = $1`, t.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Position); err != nil {
			rows.Close()
			return err
		}
		t.Categories = append(t.Categories, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = q.Query(ctx, `SELECT id, parent_category_id, name, kind, position FROM template_channels WHERE template_id = $1`, t.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			ch   domain.Channel
			kind string
		)
		if err := rows.Scan(&ch.ID, &ch.ParentCategoryID, &ch.Name, &kind, &ch.Position); err != nil {
			return err
		}
		ch.Kind = domain.ChannelKind(kind)
		t.Channels = append(t.Channels, ch)
	}
	return rows.Err()
}

func scanTemplate(row pgx.Row) (*domain.Template, error) {
	var t domain.Template
	if err := row.Scan(
		&t.ID,
		&t.GuildID,
		&t.Name,
		&t.Description,
		&t.IsInitialSnapshot,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTemplateNotFound
		}
		return nil, err
	}
	return &t, nil
}
