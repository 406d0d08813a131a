package model

import (
	"math"
	"time"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// TrainingFilter narrows a training listing. A Limit of zero or less means
// every matching row, which the sweeps rely on.
type TrainingFilter struct {
	Status    TrainingStatus `json:"status,omitempty" form:"status"`
	TrainerID string         `json:"trainer_id,omitempty" form:"trainer_id"`
	Mode      Mode           `json:"mode,omitempty" form:"mode"`
	Search    string         `json:"search,omitempty" form:"search"`
	StartFrom *time.Time     `json:"start_from,omitempty" form:"start_from" time_format:"2006-01-02T15:04:05Z07:00"`
	StartTo   *time.Time     `json:"start_to,omitempty" form:"start_to" time_format:"2006-01-02T15:04:05Z07:00"`
	EndFrom   *time.Time     `json:"end_from,omitempty" form:"end_from" time_format:"2006-01-02T15:04:05Z07:00"`
	EndTo     *time.Time     `json:"end_to,omitempty" form:"end_to" time_format:"2006-01-02T15:04:05Z07:00"`
	Page      int            `json:"page,omitempty" form:"page"`
	Limit     int            `json:"limit,omitempty" form:"limit"`
	SortBy    string         `json:"sort_by,omitempty" form:"sort_by"`
	SortOrder string         `json:"sort_order,omitempty" form:"sort_order"`
}

// Sortable training columns.
var TrainingSortColumns = map[string]string{
	"name":       "name",
	"start_date": "start_date",
	"end_date":   "end_date",
	"status":     "status",
	"created_at": "created_at",
}

// Normalize fills paging and sorting defaults.
func (f TrainingFilter) Normalize() TrainingFilter {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if _, ok := TrainingSortColumns[f.SortBy]; !ok {
		f.SortBy = "created_at"
	}
	if f.SortOrder != "asc" {
		f.SortOrder = "desc"
	}
	return f
}

// Offset returns the row offset for the current page.
func (f TrainingFilter) Offset() int {
	if f.Limit <= 0 || f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// AuditFilter narrows an audit log listing.
type AuditFilter struct {
	UserID     string     `form:"user_id"`
	Action     string     `form:"action"`
	EntityType string     `form:"entity_type"`
	EntityID   string     `form:"entity_id"`
	From       *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To         *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Page       int        `form:"page"`
	Limit      int        `form:"limit"`
}

// Normalize fills paging defaults.
func (f AuditFilter) Normalize() AuditFilter {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = 50
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	return f
}

// Offset returns the row offset for the current page.
func (f AuditFilter) Offset() int { return (f.Page - 1) * f.Limit }

// Pagination describes a page of results.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes the page count for total rows.
func NewPagination(page, limit, total int) Pagination {
	p := Pagination{Page: page, Limit: limit, Total: total}
	if limit > 0 {
		p.TotalPages = int(math.Ceil(float64(total) / float64(limit)))
	}
	return p
}

// Page is a slice of results plus its pagination metadata.
type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// TemplateFilter narrows a template listing.
type TemplateFilter struct {
	Category string `form:"category"`
	IsPublic *bool  `form:"is_public"`
	Search   string `form:"search"`
}
