// Package repo implements the data persistence layer for the monitor,
// backed by GORM. This file provides the keyword store: CRUD with
// uniqueness enforced on the normalized form, and substring search that
// treats "ё" and "е" as the same letter.
package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/dkhv/tg-monitor/internal/domain"
	"github.com/dkhv/tg-monitor/internal/normalize"
)

var (
	// ErrEmptyKeyword is returned when an add request contains only whitespace.
	ErrEmptyKeyword = errors.New("keyword is empty")

	// ErrDuplicateKeyword indicates the keyword already exists in normalized form.
	ErrDuplicateKeyword = errors.New("keyword already exists")
)

// KeywordAdd inserts a keyword, keeping the operator's spelling but
// enforcing uniqueness on the normalized form.
func KeywordAdd(ctx context.Context, db *gorm.DB, keyword string) (*domain.Keyword, error) {
	kw := strings.TrimSpace(keyword)
	if kw == "" {
		return nil, ErrEmptyKeyword
	}
	row := domain.Keyword{
		Keyword:    kw,
		Normalized: normalize.Fold(kw),
	}
	if err := db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateKeyword
		}
		return nil, err
	}
	return &row, nil
}

// KeywordDelete removes a keyword by id. Returns ErrNotFound when no row
// was deleted.
func KeywordDelete(ctx context.Context, db *gorm.DB, id int64) error {
	res := db.WithContext(ctx).Delete(&domain.Keyword{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// KeywordList returns a page of keywords plus the total count. When q is
// non-empty it filters by substring match against the normalized form.
// limit is clamped to [1, 200], offset to >= 0.
func KeywordList(ctx context.Context, db *gorm.DB, q string, limit, offset int) ([]domain.Keyword, int64, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	base := db.WithContext(ctx).Model(&domain.Keyword{})
	if qn := normalize.Fold(q); qn != "" {
		base = base.Where(`normalized LIKE ? ESCAPE '\'`, "%"+escapeLike(qn)+"%")
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []domain.Keyword
	err := base.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	return rows, total, err
}

// KeywordsAllNormalized returns every stored keyword in normalized form,
// ordered by insertion. This is the read path the dispatcher uses.
func KeywordsAllNormalized(ctx context.Context, db *gorm.DB) ([]string, error) {
	var rows []domain.Keyword
	if err := db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Normalized)
	}
	return out, nil
}

// escapeLike neutralizes SQL LIKE wildcards in user-provided search terms.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}
