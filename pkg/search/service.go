package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/apistore/pkg/observability"
)

var searchTracer = otel.Tracer("apistore/search/service")

// DefaultMaxLimit caps the page size when Config.MaxLimit is unset
const DefaultMaxLimit = 1000

// Executor runs bound statements against the catalog
type Executor interface {
	QuerySummaries(ctx context.Context, stmt *BoundStatement) ([]APISummary, error)
	Count(ctx context.Context, stmt *BoundStatement) (int, error)
}

// RoleResolver returns the roles granted to an identity
type RoleResolver interface {
	ResolveRoles(ctx context.Context, identity string) ([]string, error)
}

// Config configures a Service
type Config struct {
	Dialect        Dialect
	DefaultAPIType APIType
	MaxLimit       int
	// ExtraColumns maps additional attribute keys to AM_API columns
	ExtraColumns map[string]string
}

// DefaultConfig returns the configuration used when none is given
func DefaultConfig() Config {
	return Config{
		Dialect:        SQLite{},
		DefaultAPIType: APITypeStandard,
		MaxLimit:       DefaultMaxLimit,
	}
}

// Option configures a Service
type Option func(*Service)

// WithConfig sets the service configuration
func WithConfig(cfg Config) Option {
	return func(s *Service) { s.config = cfg }
}

// WithRoleResolver sets the resolver used when a request carries no roles
func WithRoleResolver(r RoleResolver) Option {
	return func(s *Service) { s.roles = r }
}

// WithLogger sets the service logger
func WithLogger(l *observability.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics sets the Prometheus metrics the service records into
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer overrides the OpenTelemetry tracer
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// Service searches the API catalog on behalf of a caller
type Service struct {
	executor Executor
	roles    RoleResolver
	config   Config
	keys     *KeyResolver
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer
}

// NewService creates a search service over executor
func NewService(executor Executor, opts ...Option) (*Service, error) {
	if executor == nil {
		return nil, fmt.Errorf("search executor is required")
	}

	s := &Service{
		executor: executor,
		config:   DefaultConfig(),
		tracer:   searchTracer,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.config.Dialect == nil {
		return nil, fmt.Errorf("search dialect is required")
	}
	if s.config.MaxLimit <= 0 {
		s.config.MaxLimit = DefaultMaxLimit
	}
	if s.config.DefaultAPIType == "" {
		s.config.DefaultAPIType = APITypeStandard
	}
	if err := s.config.DefaultAPIType.Validate(); err != nil {
		return nil, fmt.Errorf("invalid default API type: %w", err)
	}

	keys, err := NewKeyResolver(s.config.ExtraColumns)
	if err != nil {
		return nil, fmt.Errorf("failed to build attribute keys: %w", err)
	}
	s.keys = keys

	if s.logger == nil {
		s.logger = observability.NewLogger(observability.InfoLevel, io.Discard)
	}

	return s, nil
}

// Keys returns the attribute keys accepted by ATTRIBUTE searches
func (s *Service) Keys() []string {
	return s.keys.Keys()
}

// Search runs a FULL_TEXT or ATTRIBUTE search and returns one window of results
func (s *Service) Search(ctx context.Context, req Request) (*PaginatedResult, error) {
	ctx, span := s.tracer.Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("search.type", string(req.Type)),
			attribute.String("search.scope", string(req.Scope)),
			attribute.Int("search.offset", req.Offset),
			attribute.Int("search.limit", req.Limit),
		),
	)
	defer span.End()

	start := time.Now()
	result, err := s.search(ctx, span, req)
	duration := time.Since(start)

	logger := observability.LoggerWithSpan(ctx, observability.FromContextOr(ctx, s.logger)).WithFields(map[string]interface{}{
		"search_type": string(req.Type),
		"duration_ms": duration.Milliseconds(),
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		s.recordMetrics(req.Type, err, duration, 0)
		logger.WithError(err).Error("catalog search failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("search.results", result.Count),
		attribute.Int("search.total", result.Total),
	)
	s.recordMetrics(req.Type, nil, duration, result.Count)
	logger.WithField("results", result.Count).WithField("total", result.Total).Debug("catalog search completed")

	return result, nil
}

func (s *Service) search(ctx context.Context, span trace.Span, req Request) (*PaginatedResult, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	var (
		pred Predicate
		err  error
	)
	if req.Type == TypeAttribute {
		pred, err = BuildPredicate(req.Attributes, s.keys)
		if err != nil {
			return nil, err
		}
	}

	roles, err := s.resolveRoles(ctx, req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("search.roles", len(roles)))

	composed, err := ComposeScoped(pred, req.Type, req.Scope, len(roles), s.config.Dialect)
	if err != nil {
		return nil, err
	}

	data, count, err := Bind(composed, BindInput{
		Query:      req.Query,
		APIType:    req.APIType,
		Roles:      roles,
		Identity:   req.Identity,
		Attributes: req.Attributes,
		Offset:     req.Offset,
		Limit:      req.Limit,
	})
	if err != nil {
		return nil, err
	}

	var (
		items []APISummary
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.executor.QuerySummaries(gctx, data)
		if err != nil {
			return &QueryExecutionError{Op: "query", Err: err}
		}
		items = rows
		return nil
	})
	g.Go(func() error {
		n, err := s.executor.Count(gctx, count)
		if err != nil {
			return &QueryExecutionError{Op: "count", Err: err}
		}
		total = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if items == nil {
		items = []APISummary{}
	}

	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	return &PaginatedResult{
		Items:      items,
		Count:      len(items),
		Total:      total,
		Offset:     offset,
		Limit:      req.Limit,
		Pagination: PaginationFor(offset, req.Limit, total),
	}, nil
}

// validate checks the request and fills defaults; it runs before any SQL is built
func (s *Service) validate(req *Request) error {
	if err := req.Type.Validate(); err != nil {
		return err
	}

	if req.Limit <= 0 {
		return newValidationError("limit", fmt.Sprintf("limit must be positive, got %d", req.Limit))
	}
	if req.Limit > s.config.MaxLimit {
		return newValidationError("limit", fmt.Sprintf("limit %d exceeds maximum %d", req.Limit, s.config.MaxLimit))
	}

	if req.Scope == "" {
		req.Scope = ScopeStore
	}
	if err := req.Scope.Validate(); err != nil {
		return err
	}

	switch req.Type {
	case TypeFullText:
		if SanitizeFreeText(req.Query) == "" {
			return newValidationError("query", "search term is empty after removing special characters")
		}
	case TypeAttribute:
		if len(req.Attributes) == 0 {
			return newValidationError("attributes", "at least one attribute is required")
		}
		if req.Scope == ScopeStore {
			return nil
		}
	}

	// Full-text and publisher searches filter by API type
	if req.APIType == "" {
		req.APIType = s.config.DefaultAPIType
	}
	return req.APIType.Validate()
}

// resolveRoles returns the request roles, deduplicated in first-seen order, or the
// roles of the identity when the request carries none
func (s *Service) resolveRoles(ctx context.Context, req Request) ([]string, error) {
	if len(req.Roles) == 0 && s.roles != nil && req.Identity != "" {
		resolved, err := s.roles.ResolveRoles(ctx, req.Identity)
		if err != nil {
			return nil, &QueryExecutionError{Op: "resolve roles", Err: err}
		}
		roles := dedupeRoles(resolved)
		sort.Strings(roles)
		return roles, nil
	}
	return dedupeRoles(req.Roles), nil
}

func dedupeRoles(roles []string) []string {
	seen := make(map[string]bool, len(roles))
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		if role == "" || seen[role] {
			continue
		}
		seen[role] = true
		out = append(out, role)
	}
	return out
}

func (s *Service) recordMetrics(t SearchType, err error, duration time.Duration, results int) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordSearch(string(t), outcome(err), duration, results)
}

// outcome labels a search result for metrics
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrQueryBuild):
		return "build_error"
	default:
		return "error"
	}
}
