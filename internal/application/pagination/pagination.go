// Package pagination turns a page number and size into one bounded page of records plus page metadata.
package pagination

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/garyjia/commute-approvals/internal/domain/apperror"
)

// Source counts and fetches records matching a filter in a stable order
type Source[T any, F any] interface {
	// Count returns the number of records matching filter
	Count(ctx context.Context, filter F) (int, error)

	// Fetch returns at most limit records matching filter starting at offset
	Fetch(ctx context.Context, filter F, offset, limit int) ([]T, error)
}

// PageRequest selects a 1-based page of the given size
type PageRequest struct {
	Page int
	Size int
}

// PageMeta describes the page returned and the full result set
type PageMeta struct {
	TotalPages   int `json:"totalPages"`
	Page         int `json:"page"`
	TotalResults int `json:"totalResults"`
	PageSize     int `json:"pageSize"`
}

// PageResult is one page of records
type PageResult[T any] struct {
	Data     []T      `json:"data"`
	PageMeta PageMeta `json:"pageMeta"`
}

// Engine pages through one source with a fixed filter and page size
type Engine[T any, F any] struct {
	source   Source[T, F]
	filter   F
	pageSize int
}

// New creates an engine; a non-positive pageSize is rejected
func New[T any, F any](source Source[T, F], filter F, pageSize int) (*Engine[T, F], error) {
	if pageSize <= 0 {
		return nil, apperror.NewValidationError("size", "size must be a positive integer")
	}
	return &Engine[T, F]{source: source, filter: filter, pageSize: pageSize}, nil
}

// GetPageItems returns page number page. Pages start at 1; lower numbers are rejected.
// A page past the last one yields empty data with the same totals.
func (e *Engine[T, F]) GetPageItems(ctx context.Context, page int) (*PageResult[T], error) {
	if page < 1 {
		return nil, apperror.NewValidationError("page", "page must be a positive integer")
	}

	total, err := e.source.Count(ctx, e.filter)
	if err != nil {
		return nil, apperror.Dependency("count page items", err)
	}

	offset := (page - 1) * e.pageSize
	data := []T{}
	if offset < total {
		fetched, err := e.source.Fetch(ctx, e.filter, offset, e.pageSize)
		if err != nil {
			return nil, apperror.Dependency("fetch page items", err)
		}
		if len(fetched) > e.pageSize {
			fetched = fetched[:e.pageSize]
		}
		data = append(data, fetched...)
	}

	return &PageResult[T]{
		Data: data,
		PageMeta: PageMeta{
			TotalPages:   TotalPages(total, e.pageSize),
			Page:         page,
			TotalResults: total,
			PageSize:     e.pageSize,
		},
	}, nil
}

// GetPage is a one-shot form of New followed by GetPageItems
func GetPage[T any, F any](ctx context.Context, source Source[T, F], req PageRequest, filter F) (*PageResult[T], error) {
	engine, err := New(source, filter, req.Size)
	if err != nil {
		return nil, err
	}
	return engine.GetPageItems(ctx, req.Page)
}

// TotalPages is ceil(total / size)
func TotalPages(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

var positiveInteger = regexp.MustCompile(`^[1-9][0-9]*$`)

// ParsePageRequest validates raw page and size query values. Empty values fall back
// to page 1 and defaultSize; every malformed value is reported on its own field.
func ParsePageRequest(pageRaw, sizeRaw string, defaultSize int) (PageRequest, error) {
	req := PageRequest{Page: 1, Size: defaultSize}
	problems := &apperror.ValidationError{}

	if raw := strings.TrimSpace(pageRaw); raw != "" {
		if n, ok := parsePositive(raw); ok {
			req.Page = n
		} else {
			problems.Add("page", "page must be a positive integer")
		}
	}
	if raw := strings.TrimSpace(sizeRaw); raw != "" {
		if n, ok := parsePositive(raw); ok {
			req.Size = n
		} else {
			problems.Add("size", "size must be a positive integer")
		}
	}
	if req.Size <= 0 && !problems.Has("size") {
		problems.Add("size", "size must be a positive integer")
	}

	if err := problems.OrNil(); err != nil {
		return PageRequest{}, err
	}
	return req, nil
}

func parsePositive(raw string) (int, bool) {
	if !positiveInteger.MatchString(raw) {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}
