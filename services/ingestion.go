// Package services orchestrates the upload-to-post ingestion flow:
// validate, parse, conflict-check, and write through the post store.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/pinkhuff/blog-api/markdown"
	"github.com/pinkhuff/blog-api/models"
	"github.com/pinkhuff/blog-api/stores"
)

// IngestionService owns the conflict-check-before-write policy for post
// creation and replacement. Parse failures never reach the store and
// store failures are never reinterpreted as input errors, so callers can
// distinguish bad input, conflicts, and infrastructure problems.
type IngestionService struct {
	store *stores.PostStore
}

// NewIngestionService wires the service to its post store.
func NewIngestionService(store *stores.PostStore) *IngestionService {
	return &IngestionService{store: store}
}

// SubmitNew turns a raw markdown upload into a persisted post.
// Error set: markdown parse errors, stores.ErrDuplicateSlug (as a
// *stores.DuplicateSlugError), or a wrapped storage error.
func (s *IngestionService) SubmitNew(ctx context.Context, raw []byte) (*models.Post, error) {
	if err := markdown.Validate(raw); err != nil {
		return nil, err
	}
	parsed, err := markdown.Parse(raw)
	if err != nil {
		return nil, err
	}

	taken, err := s.store.SlugExists(ctx, parsed.Slug, 0)
	if err != nil {
		return nil, fmt.Errorf("slug availability check: %w", err)
	}
	if taken {
		return nil, &stores.DuplicateSlugError{Slug: parsed.Slug}
	}

	post := postFromParsed(parsed)
	if err := s.store.Create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// SubmitUpdate replaces the document stored under id with a re-parsed
// upload, keeping the original id, creation time, and view counter.
// Returns stores.ErrNotFound when id does not exist.
func (s *IngestionService) SubmitUpdate(ctx context.Context, id uint, raw []byte) (*models.Post, error) {
	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := markdown.Validate(raw); err != nil {
		return nil, err
	}
	parsed, err := markdown.Parse(raw)
	if err != nil {
		return nil, err
	}

	if parsed.Slug != existing.Slug {
		taken, err := s.store.SlugExists(ctx, parsed.Slug, id)
		if err != nil {
			return nil, fmt.Errorf("slug availability check: %w", err)
		}
		if taken {
			return nil, &stores.DuplicateSlugError{Slug: parsed.Slug}
		}
	}

	post := postFromParsed(parsed)
	if err := s.store.Update(ctx, id, post); err != nil {
		return nil, err
	}
	return post, nil
}

// IsInputError reports whether err belongs to the caller-fixable parse
// and validation family.
func IsInputError(err error) bool {
	return errors.Is(err, markdown.ErrEmptyInput) ||
		errors.Is(err, markdown.ErrMissingTitle) ||
		errors.Is(err, markdown.ErrMalformedMetadata) ||
		errors.Is(err, markdown.ErrTitleTooLong)
}

func postFromParsed(p *markdown.ParsedPost) *models.Post {
	return &models.Post{
		Title:       p.Title,
		Slug:        p.Slug,
		Content:     p.Content,
		HTMLContent: p.HTMLContent,
		Excerpt:     p.Excerpt,
		Author:      p.Author,
		Tags:        p.Tags,
		Published:   p.Published,
	}
}
