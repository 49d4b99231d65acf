package task

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrInvalidSort is returned for a malformed sort parameter.
	ErrInvalidSort = errors.New("invalid sort")
	// ErrInvalidPage is returned for negative page or size values and for
	// pages whose offset does not fit in an int.
	ErrInvalidPage = errors.New("invalid page")
)

// Paging defaults.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Predicate selects tasks by author and assignee. With both ids set it
// matches tasks authored by AuthorID OR assigned to AssigneeID; with one
// set it is an equality on that field; with neither it matches everything.
type Predicate struct {
	AuthorID   *int64
	AssigneeID *int64
}

// ComposeFilter builds the list predicate from the optional filter ids.
func ComposeFilter(authorID, assigneeID *int64) Predicate {
	return Predicate{AuthorID: authorID, AssigneeID: assigneeID}
}

// Unrestricted reports whether p matches every task.
func (p Predicate) Unrestricted() bool {
	return p.AuthorID == nil && p.AssigneeID == nil
}

// SQL renders p as a WHERE fragment over the tasks table aliased t.
func (p Predicate) SQL() (string, []any) {
	switch {
	case p.AuthorID != nil && p.AssigneeID != nil:
		return "(t.author_id = ? OR t.assignee_id = ?)", []any{*p.AuthorID, *p.AssigneeID}
	case p.AuthorID != nil:
		return "t.author_id = ?", []any{*p.AuthorID}
	case p.AssigneeID != nil:
		return "t.assignee_id = ?", []any{*p.AssigneeID}
	}
	return "1=1", nil
}

// sortColumns maps sortable field names to SQL expressions.
var sortColumns = map[string]string{
	"id":        "t.id",
	"title":     "t.title",
	"status":    "t.status",
	"priority":  "t.priority",
	"author":    "t.author_id",
	"assignee":  "t.assignee_id",
	"createdAt": "t.created_at",
	"updatedAt": "t.updated_at",
}

// Order is one sort key.
type Order struct {
	Field string
	Desc  bool
}

// Sort is an ordered list of sort keys; earlier keys take priority.
type Sort []Order

// DefaultSort orders newest ids first.
var DefaultSort = Sort{{Field: "id", Desc: true}}

// ParseSort accepts "field,dir" values, given as several values or
// flattened into one ("f1,d1,f2,d2"). Direction is asc or desc in any
// case. No values yields DefaultSort.
func ParseSort(values []string) (Sort, error) {
	var tokens []string
	for _, v := range values {
		for _, tok := range strings.Split(v, ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				tokens = append(tokens, tok)
			}
		}
	}
	if len(tokens) == 0 {
		return DefaultSort, nil
	}
	if len(tokens)%2 != 0 {
		return nil, fmt.Errorf("%w: expected field,direction pairs", ErrInvalidSort)
	}
	s := make(Sort, 0, len(tokens)/2)
	for i := 0; i < len(tokens); i += 2 {
		field, dir := tokens[i], tokens[i+1]
		if _, ok := sortColumns[field]; !ok {
			return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidSort, field)
		}
		var desc bool
		switch strings.ToLower(dir) {
		case "asc":
		case "desc":
			desc = true
		default:
			return nil, fmt.Errorf("%w: unknown direction %q", ErrInvalidSort, dir)
		}
		s = append(s, Order{Field: field, Desc: desc})
	}
	return s, nil
}

// SQL renders s as an ORDER BY list. The id is appended as a final
// tie-breaker so paging is stable.
func (s Sort) SQL() string {
	if len(s) == 0 {
		s = DefaultSort
	}
	parts := make([]string, 0, len(s)+1)
	hasID := false
	for _, o := range s {
		col := sortColumns[o.Field]
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
		if o.Field == "id" {
			hasID = true
		}
	}
	if !hasID {
		parts = append(parts, "t.id ASC")
	}
	return strings.Join(parts, ", ")
}

// String renders s back in "field,dir" form.
func (s Sort) String() string {
	parts := make([]string, len(s))
	for i, o := range s {
		dir := "asc"
		if o.Desc {
			dir = "desc"
		}
		parts[i] = o.Field + "," + dir
	}
	return strings.Join(parts, ",")
}

// PageRequest selects a zero-based page of a given size.
type PageRequest struct {
	Page int
	Size int
}

// Offset returns the number of rows to skip.
func (p PageRequest) Offset() int { return p.Page * p.Size }

// ParsePage validates paging values. A zero size means DefaultPageSize
// and sizes above MaxPageSize are capped. Pages past math.MaxInt/size are
// rejected so Offset cannot overflow.
func ParsePage(page, size int) (PageRequest, error) {
	if page < 0 {
		return PageRequest{}, fmt.Errorf("%w: page must not be negative", ErrInvalidPage)
	}
	if size < 0 {
		return PageRequest{}, fmt.Errorf("%w: size must not be negative", ErrInvalidPage)
	}
	if size == 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	if page > math.MaxInt/size {
		return PageRequest{}, fmt.Errorf("%w: page %d out of range", ErrInvalidPage, page)
	}
	return PageRequest{Page: page, Size: size}, nil
}

// Query is a complete list request.
type Query struct {
	Filter Predicate
	Sort   Sort
	Page   PageRequest
}

// Page is one page of results.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

// NewPage assembles a page, computing TotalPages from total and req.Size.
func NewPage[T any](content []T, req PageRequest, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	pages := 0
	if req.Size > 0 {
		pages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return Page[T]{
		Content:       content,
		Page:          req.Page,
		Size:          req.Size,
		TotalElements: total,
		TotalPages:    pages,
	}
}
