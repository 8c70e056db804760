package audit

import "time"

// TimelineFilters narrows the audit timeline. From and To are inclusive dates.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	ActorID  int64
	Entity   string
	EntityID string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one access-control change as returned to clients.
type TimelineRow struct {
	At         time.Time      `json:"at"`
	ActorID    int64          `json:"actorId"`
	ActorEmail string         `json:"actorEmail,omitempty"`
	Action     string         `json:"action"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entityId"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// PagingInfo describes the window returned by Timeline.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasNext  bool `json:"hasNext"`
	PrevPage int  `json:"prevPage,omitempty"`
	NextPage int  `json:"nextPage,omitempty"`
}

// Result bundles a timeline page with its paging metadata.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// Query is the repository level form of TimelineFilters.
type Query struct {
	From     time.Time
	Until    time.Time
	ActorID  int64
	Entity   string
	EntityID string
	Action   string
	Limit    int
	Offset   int
}
