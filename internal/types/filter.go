package types

import "time"

const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// QueryFilter is the limit/offset window shared by list endpoints
type QueryFilter struct {
	Limit  int `form:"limit" json:"limit" validate:"omitempty,min=1,max=1000"`
	Offset int `form:"offset" json:"offset" validate:"omitempty,min=0"`
}

// GetLimit returns the limit, falling back to DefaultLimit
func (f QueryFilter) GetLimit() int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	if f.Limit > MaxLimit {
		return MaxLimit
	}
	return f.Limit
}

func (f QueryFilter) GetOffset() int {
	if f.Offset < 0 {
		return 0
	}
	return f.Offset
}

// SubscriberFilter selects subscriber records of one instance
type SubscriberFilter struct {
	QueryFilter
	InstanceID string
	// DueAt selects records with terminal none and active_until <= DueAt
	DueAt *time.Time
}

// ChargeFilter selects charge attempts
type ChargeFilter struct {
	QueryFilter
	InstanceID string
	Subscriber Address
	Kind       ChargeKind
	Status     ChargeStatus
}

// ListResponse represents a paginated response with items
type ListResponse[T any] struct {
	Items      []T                `json:"items"`
	Pagination PaginationResponse `json:"pagination"`
}

// PaginationResponse represents standardized pagination metadata
type PaginationResponse struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// NewListResponse creates a new list response with pagination
func NewListResponse[T any](items []T, total int, f QueryFilter) ListResponse[T] {
	return ListResponse[T]{
		Items: items,
		Pagination: PaginationResponse{
			Total:  total,
			Limit:  f.GetLimit(),
			Offset: f.GetOffset(),
		},
	}
}
