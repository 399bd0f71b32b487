package monitor

import "time"

// Status is the last observed health of the template server's dependencies.
type Status struct {
	Storage      string    `json:"storage"`
	StorageOK    bool      `json:"storage_ok"`
	CacheEnabled bool      `json:"cache_enabled"`
	Cache        bool      `json:"cache"`
	Layouts      bool      `json:"layouts"`
	LayoutCount  int       `json:"layout_count"`
	LastCheck    time.Time `json:"last_check"`
}
