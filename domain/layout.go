package domain

import (
	"encoding/json"
	"time"
)

// Layout is the persisted arrangement of dashboard panels for one guild page.
type Layout struct {
	GuildID   string          `json:"guild_id"`
	Page      string          `json:"page"`
	Items     json.RawMessage `json:"items"`
	UpdatedAt time.Time       `json:"updated_at"`
}
