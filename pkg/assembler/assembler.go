// Package assembler filters posts by posting time and cuts one page out of the result.
package assembler

import (
	"fmt"

	"github.com/samber/lo"

	errs "ttscraper/pkg/errors"
	"ttscraper/pkg/models"
)

// MaxPerPage is the largest page size accepted
const MaxPerPage = 100

// Filter restricts posts to an inclusive posting time window. Nil bounds are open.
type Filter struct {
	Start *int64
	End   *int64
}

// Matches reports whether p lies inside the window
func (f Filter) Matches(p models.Post) bool {
	if f.Start != nil && p.PostedAt < *f.Start {
		return false
	}
	if f.End != nil && p.PostedAt > *f.End {
		return false
	}
	return true
}

// Result is one page of filtered posts
type Result struct {
	Items      []models.Post
	TotalPages int
	TotalCount int
}

// Build filters posts, keeping their order, and returns page (1-based) of size perPage
func Build(posts []models.Post, f Filter, page, perPage int) (Result, error) {
	if err := Validate(f, page, perPage); err != nil {
		return Result{}, err
	}

	filtered := lo.Filter(posts, func(p models.Post, _ int) bool {
		return f.Matches(p)
	})

	total := len(filtered)
	totalPages := 0
	if total > 0 {
		totalPages = (total + perPage - 1) / perPage
	}

	if totalPages > 0 && page > totalPages {
		return Result{}, &errs.Error{
			Type:    errs.ErrorTypePageOutOfRange,
			Message: fmt.Sprintf("page %d is beyond the last page %d", page, totalPages),
		}
	}

	start := min((page-1)*perPage, total)
	end := min(page*perPage, total)

	return Result{
		Items:      filtered[start:end],
		TotalPages: totalPages,
		TotalCount: total,
	}, nil
}

// Validate checks page, perPage and the window bounds without touching any posts
func Validate(f Filter, page, perPage int) error {
	switch {
	case page < 1:
		return errs.New(errs.ErrorTypeInvalidRequest, fmt.Sprintf("page must be at least 1, got %d", page))
	case perPage < 1 || perPage > MaxPerPage:
		return errs.New(errs.ErrorTypeInvalidRequest, fmt.Sprintf("per_page must be between 1 and %d, got %d", MaxPerPage, perPage))
	case f.Start != nil && f.End != nil && *f.Start > *f.End:
		return errs.New(errs.ErrorTypeInvalidRequest, "start_epoch must not be after end_epoch")
	}
	return nil
}
