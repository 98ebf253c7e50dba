package sql

import (
	"context"
	"log/slog"

	"github.com/osputil/osputil/internal/metrics"
)

// StatementBuilder wraps the Create*Statement functions with a last-result
// slot. Each method returns only the statement and records its outcome,
// which LastResult reports until the next call.
//
// A StatementBuilder is not safe for concurrent use. The package-level
// functions are.
type StatementBuilder struct {
	last    error
	log     *slog.Logger
	metrics *metrics.Recorder
}

// BuilderOption configures a StatementBuilder.
type BuilderOption func(*StatementBuilder)

// WithLogger logs rejected statements at debug level.
func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *StatementBuilder) {
		b.log = l
	}
}

// WithMetrics counts built statements on r.
func WithMetrics(r *metrics.Recorder) BuilderOption {
	return func(b *StatementBuilder) {
		b.metrics = r
	}
}

// NewStatementBuilder returns a StatementBuilder.
func NewStatementBuilder(opts ...BuilderOption) *StatementBuilder {
	b := &StatementBuilder{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// LastResult returns the error of the most recent call, or nil if it succeeded.
func (b *StatementBuilder) LastResult() error {
	return b.last
}

// CreateSelectStatement calls CreateSelectStatement. It returns "" on failure.
func (b *StatementBuilder) CreateSelectStatement(table string, opts SelectOptions) string {
	s, err := CreateSelectStatement(table, opts)
	return b.record(KindSelect, s, err)
}

// CreateInsertStatement calls CreateInsertStatement. It returns "" on failure.
func (b *StatementBuilder) CreateInsertStatement(table string, values Assignments) string {
	s, err := CreateInsertStatement(table, values)
	return b.record(KindInsert, s, err)
}

// CreateUpdateStatement calls CreateUpdateStatement. It returns "" on failure.
func (b *StatementBuilder) CreateUpdateStatement(table string, values Assignments, where string) string {
	s, err := CreateUpdateStatement(table, values, where)
	return b.record(KindUpdate, s, err)
}

// CreateDeleteStatement calls CreateDeleteStatement. It returns "" on failure.
func (b *StatementBuilder) CreateDeleteStatement(table, where string) string {
	s, err := CreateDeleteStatement(table, where)
	return b.record(KindDelete, s, err)
}

func (b *StatementBuilder) record(kind, stmt string, err error) string {
	b.last = err
	b.metrics.ObserveStatement(kind, err)
	if err != nil && b.log != nil {
		b.log.LogAttrs(context.Background(), slog.LevelDebug, "statement rejected",
			slog.String("kind", kind), slog.Any("error", err))
	}
	return stmt
}
