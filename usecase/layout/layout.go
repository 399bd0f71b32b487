package layout

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/guild-designer/domain"
	"github.com/fastygo/guild-designer/repository"
)

// maxItemsSize bounds a stored layout document.
const maxItemsSize = 256 << 10

type UseCase struct {
	layouts repository.LayoutRepository
	logger  *zap.Logger
}

func New(layouts repository.LayoutRepository, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{layouts: layouts, logger: logger.Named("layouts")}
}

func (uc *UseCase) Get(ctx context.Context, guildID, page string) (*domain.Layout, error) {
	return uc.layouts.Get(ctx, guildID, page)
}

// Put stores items, which must be a JSON document.
func (uc *UseCase) Put(ctx context.Context, guildID, page string, items json.RawMessage) (*domain.Layout, error) {
	if strings.TrimSpace(guildID) == "" || strings.TrimSpace(page) == "" {
		return nil, domain.NewError(domain.ErrCodeInvalid, "guild and page are required")
	}
	if len(items) == 0 || len(items) > maxItemsSize || !json.Valid(items) {
		return nil, domain.NewError(domain.ErrCodeInvalid, "layout items must be a JSON document")
	}

	l := &domain.Layout{GuildID: guildID, Page: page, Items: items, UpdatedAt: time.Now().UTC()}
	if err := uc.layouts.Put(ctx, l); err != nil {
		return nil, err
	}
	uc.logger.Debug("layout stored", zap.String("guild_id", guildID), zap.String("page", page), zap.Int("bytes", len(items)))
	return l, nil
}

func (uc *UseCase) Delete(ctx context.Context, guildID, page string) error {
	return uc.layouts.Delete(ctx, guildID, page)
}
