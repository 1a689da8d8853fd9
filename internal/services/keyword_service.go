// Package services – KeywordService
//
// This file implements the KeywordService, which manages the keyword set
// driving the forwarding policy. Keywords keep their original spelling for
// display; matching and uniqueness run on the normalized form (trim, case
// fold, ё folded to е, whitespace collapsed), so "Срочно" and "срочно" are
// the same keyword.
//
// Service-level errors (ErrKeywordExists, ErrKeywordNotFound, ErrKeywordEmpty)
// are returned for predictable cases so handlers can map them to HTTP
// results consistently.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/dkhv/tg-monitor/internal/domain"
	"github.com/dkhv/tg-monitor/internal/repo"
)

var (
	// ErrKeywordEmpty is returned when the keyword is blank after trimming.
	ErrKeywordEmpty = errors.New("keyword is empty")
	// ErrKeywordExists is returned when the normalized form already exists.
	ErrKeywordExists = errors.New("keyword already exists")
	// ErrKeywordNotFound is returned when no keyword has the given id.
	ErrKeywordNotFound = errors.New("keyword not found")
)

// KeywordRepo defines the repository contract required by KeywordService.
type KeywordRepo interface {
	// KeywordAdd inserts a keyword, normalizing for uniqueness.
	KeywordAdd(ctx context.Context, db *gorm.DB, keyword string) (*domain.Keyword, error)

	// KeywordDelete removes a keyword by id.
	KeywordDelete(ctx context.Context, db *gorm.DB, id int64) error

	// KeywordList returns a page of keywords matching q plus the total count.
	KeywordList(ctx context.Context, db *gorm.DB, q string, limit, offset int) ([]domain.Keyword, int64, error)
}

// KeywordService provides keyword CRUD for the admin layer.
type KeywordService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the keyword repository used by this service.
	Repo KeywordRepo
}

// NewKeywordService constructs a KeywordService.
func NewKeywordService(db *gorm.DB, r KeywordRepo) *KeywordService {
	return &KeywordService{DB: db, Repo: r}
}

// Add inserts a new keyword, mapping repository errors to service errors.
func (s *KeywordService) Add(ctx context.Context, keyword string) (*domain.Keyword, error) {
	kw, err := s.Repo.KeywordAdd(ctx, s.DB, keyword)
	switch {
	case errors.Is(err, repo.ErrEmptyKeyword):
		return nil, ErrKeywordEmpty
	case errors.Is(err, repo.ErrDuplicateKeyword):
		return nil, ErrKeywordExists
	case err != nil:
		return nil, err
	}
	return kw, nil
}

// Delete removes a keyword by id.
func (s *KeywordService) Delete(ctx context.Context, id int64) error {
	err := s.Repo.KeywordDelete(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrKeywordNotFound
	}
	return err
}

// ListPage returns a page of keywords filtered by q and the total count.
func (s *KeywordService) ListPage(ctx context.Context, q string, page, pageSize int) ([]domain.Keyword, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	return s.Repo.KeywordList(ctx, s.DB, q, pageSize, (page-1)*pageSize)
}
