package store

import (
	"context"
	"errors"

	"github.com/seantiz/courier/internal/model"
)

// ErrInvalidTransition is returned when an invocation status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// InvocationStats holds aggregate invocation statistics.
type InvocationStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	CountByFamily map[string]int `json:"count_by_family"`
	Cancelled     int            `json:"cancelled"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for invocation history.
type Store interface {
	CreateInvocation(ctx context.Context, inv *model.Invocation) error
	GetInvocation(ctx context.Context, id string) (*model.Invocation, error)
	ListInvocations(ctx context.Context, limit, offset int) ([]*model.Invocation, int, error)
	UpdateInvocationStatus(ctx context.Context, id, status string) error
	UpdateInvocation(ctx context.Context, inv *model.Invocation) error
	GetInvocationStats(ctx context.Context) (*InvocationStats, error)
	InsertEvent(ctx context.Context, invocationID string, seq int, kind, data string) error
	GetEvents(ctx context.Context, invocationID string) ([]model.Event, error)
	Close() error
}
