package audit

import (
	"errors"
	"time"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ErrInvalidFilter flags a malformed timeline query.
var ErrInvalidFilter = errors.New("audit: invalid filter")

// TimelineFilters narrows the audit timeline. Empty fields match everything.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Entity   string
	EntityID string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one recorded stock movement or catalogue change.
type TimelineRow struct {
	ID       int64          `json:"id"`
	At       time.Time      `json:"at"`
	ActorID  int64          `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// PagingInfo describes the page returned and its neighbours.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Window is the repository query derived from filters.
type Window struct {
	From     time.Time
	To       time.Time
	Entity   string
	EntityID string
	Action   string
	Offset   int
	Limit    int
}
