package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/apistore/pkg/observability"
	"github.com/platinummonkey/apistore/pkg/search"
)

var storageTracer = otel.Tracer("apistore/storage")

// SQLExecutor runs bound search statements on the read replicas
type SQLExecutor struct {
	conns   *ConnectionManager
	metrics *observability.Metrics
}

// NewSQLExecutor creates an executor over conns. metrics may be nil.
func NewSQLExecutor(conns *ConnectionManager, metrics *observability.Metrics) *SQLExecutor {
	return &SQLExecutor{
		conns:   conns,
		metrics: metrics,
	}
}

// QuerySummaries runs a data statement and scans every row
func (e *SQLExecutor) QuerySummaries(ctx context.Context, stmt *search.BoundStatement) ([]search.APISummary, error) {
	ctx, span := e.startSpan(ctx, "search_query", stmt)
	defer span.End()

	start := time.Now()
	summaries, err := e.querySummaries(ctx, stmt)
	e.record(span, "search_query", start, err)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("db.rows", len(summaries)))
	return summaries, nil
}

func (e *SQLExecutor) querySummaries(ctx context.Context, stmt *search.BoundStatement) ([]search.APISummary, error) {
	query := e.conns.Dialect().Rebind(stmt.SQL)

	rows, err := e.conns.Replica().QueryContext(ctx, query, stmt.Args()...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer rows.Close()

	summaries := make([]search.APISummary, 0)
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}

	return summaries, nil
}

// Count runs a count statement
func (e *SQLExecutor) Count(ctx context.Context, stmt *search.BoundStatement) (int, error) {
	ctx, span := e.startSpan(ctx, "search_count", stmt)
	defer span.End()

	start := time.Now()
	query := e.conns.Dialect().Rebind(stmt.SQL)

	var total int
	err := e.conns.Replica().QueryRowContext(ctx, query, stmt.Args()...).Scan(&total)
	if err != nil {
		err = fmt.Errorf("failed to count results: %w", err)
	}
	e.record(span, "search_count", start, err)
	if err != nil {
		return 0, err
	}

	return total, nil
}

func (e *SQLExecutor) startSpan(ctx context.Context, op string, stmt *search.BoundStatement) (context.Context, trace.Span) {
	return storageTracer.Start(ctx, op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", e.conns.Dialect().Name()),
			attribute.Int("db.params", len(stmt.Params)),
		),
	)
}

func (e *SQLExecutor) record(span trace.Span, op string, start time.Time, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
	}
	if e.metrics != nil {
		e.metrics.RecordDBQuery(op, time.Since(start), err)
	}
}

// scanSummary scans one API summary row; optional columns may be NULL
func scanSummary(rows *sql.Rows) (search.APISummary, error) {
	var s search.APISummary
	var description, instanceID, workflow sql.NullString

	err := rows.Scan(
		&s.ID,
		&s.Provider,
		&s.Name,
		&s.Context,
		&s.Version,
		&description,
		&s.LifecycleStatus,
		&instanceID,
		&workflow,
	)
	if err != nil {
		return search.APISummary{}, fmt.Errorf("failed to scan result: %w", err)
	}

	s.Description = description.String
	s.LifecycleInstanceID = instanceID.String
	s.WorkflowStatus = workflow.String

	return s, nil
}
