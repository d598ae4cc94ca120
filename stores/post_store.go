// Package stores owns durable post storage: the posts table and the
// full-text index that must stay in lockstep with it.
package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/pinkhuff/blog-api/models"
)

// ErrNotFound is returned when no post matches the requested id or slug.
var ErrNotFound = errors.New("post not found")

// ErrDuplicateSlug marks slug uniqueness violations. Use errors.Is against
// this sentinel; the concrete error carries the conflicting slug.
var ErrDuplicateSlug = errors.New("duplicate slug")

// DuplicateSlugError reports which slug collided.
type DuplicateSlugError struct {
	Slug string
}

func (e *DuplicateSlugError) Error() string {
	return fmt.Sprintf("a post with slug %q already exists", e.Slug)
}

func (e *DuplicateSlugError) Unwrap() error { return ErrDuplicateSlug }

// PostStore provides transactional access to posts. Construct one at boot
// with NewPostStore and share it by reference; it holds no state beyond
// the database handle.
type PostStore struct {
	db *gorm.DB
}

// NewPostStore wraps an initialized gorm connection.
func NewPostStore(db *gorm.DB) *PostStore {
	return &PostStore{db: db}
}

// Create inserts a new post and, when published, its search-index entry in
// a single transaction. Slug uniqueness is enforced by the unique index
// inside the same transaction, so two racing creates with the same slug
// yield exactly one success and one DuplicateSlugError.
func (s *PostStore) Create(ctx context.Context, post *models.Post) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			if isUniqueViolation(err) {
				return &DuplicateSlugError{Slug: post.Slug}
			}
			return fmt.Errorf("insert post: %w", err)
		}
		if post.Published {
			if err := insertIndexEntry(tx, post); err != nil {
				return fmt.Errorf("index post %d: %w", post.ID, err)
			}
		}
		return nil
	})
}

// Update replaces the stored document for id, preserving the original id,
// created_at, and view_count. The index entry is rewritten, added, or
// removed to match the new published state, atomically with the row.
func (s *PostStore) Update(ctx context.Context, id uint, post *models.Post) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Post
		if err := tx.First(&existing, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load post %d: %w", id, err)
		}

		updates := map[string]any{
			"title":        post.Title,
			"slug":         post.Slug,
			"content":      post.Content,
			"html_content": post.HTMLContent,
			"excerpt":      post.Excerpt,
			"author":       post.Author,
			"tags":         post.Tags,
			"published":    post.Published,
		}
		if err := tx.Model(&models.Post{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			if isUniqueViolation(err) {
				return &DuplicateSlugError{Slug: post.Slug}
			}
			return fmt.Errorf("update post %d: %w", id, err)
		}

		if err := deleteIndexEntry(tx, id); err != nil {
			return fmt.Errorf("deindex post %d: %w", id, err)
		}
		var saved models.Post
		if err := tx.First(&saved, id).Error; err != nil {
			return fmt.Errorf("reload post %d: %w", id, err)
		}
		if saved.Published {
			if err := insertIndexEntry(tx, &saved); err != nil {
				return fmt.Errorf("reindex post %d: %w", id, err)
			}
		}

		*post = saved
		return nil
	})
}

// Delete removes the row and its index entry as one atomic unit.
func (s *PostStore) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Post{}, id)
		if res.Error != nil {
			return fmt.Errorf("delete post %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := deleteIndexEntry(tx, id); err != nil {
			return fmt.Errorf("deindex post %d: %w", id, err)
		}
		return nil
	})
}

// GetByID returns the post regardless of published state. Used by the
// authenticated edit and delete flows.
func (s *PostStore) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load post %d: %w", id, err)
	}
	return &post, nil
}

// GetBySlug is the public single-post read path: published posts only,
// with a best-effort view counter increment as an observable side effect.
// The returned count reflects the value before this fetch's increment.
func (s *PostStore) GetBySlug(ctx context.Context, slug string) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).
		Where("slug = ? AND published = ?", slug, true).
		First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load post %q: %w", slug, err)
	}

	if err := s.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ?", post.ID).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error; err != nil {
		return nil, fmt.Errorf("count view for post %d: %w", post.ID, err)
	}
	return &post, nil
}

// listColumns excludes the full bodies from list responses.
const listColumns = "id, title, slug, excerpt, author, tags, published, view_count, created_at, updated_at"

// ListPublished returns published posts newest-created-first along with
// the total published count for pagination.
func (s *PostStore) ListPublished(ctx context.Context, limit, offset int) ([]models.Post, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Post{}).Where("published = ?", true)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	var posts []models.Post
	err := q.Select(listColumns).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	return posts, total, nil
}

// Search runs a full-text match over the index, restricted to published
// posts and ordered by FTS5 relevance rank.
func (s *PostStore) Search(ctx context.Context, query string, limit int) ([]models.Post, error) {
	var posts []models.Post
	err := s.db.WithContext(ctx).Raw(`
		SELECT posts.id, posts.title, posts.slug, posts.excerpt, posts.author,
		       posts.tags, posts.created_at
		FROM posts_fts
		JOIN posts ON posts_fts.rowid = posts.id
		WHERE posts_fts MATCH ? AND posts.published = 1
		ORDER BY rank
		LIMIT ?`, query, limit).Scan(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	return posts, nil
}

// ListByTag returns published posts whose flattened tag string contains
// the given tag, newest-created-first.
func (s *PostStore) ListByTag(ctx context.Context, tag string, limit, offset int) ([]models.Post, error) {
	var posts []models.Post
	err := s.db.WithContext(ctx).
		Select(listColumns).
		Where("published = ? AND tags LIKE ?", true, "%"+tag+"%").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("list posts by tag %q: %w", tag, err)
	}
	return posts, nil
}

// SlugExists reports whether any post other than excludeID already uses
// the slug. Callers use it for early conflict rejection; the unique index
// remains the authoritative check at write time.
func (s *PostStore) SlugExists(ctx context.Context, slug string, excludeID uint) (bool, error) {
	q := s.db.WithContext(ctx).Model(&models.Post{}).Where("slug = ?", slug)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("check slug %q: %w", slug, err)
	}
	return count > 0, nil
}

// insertIndexEntry adds the searchable fields of a published post to the
// FTS table, keyed by the post's row id.
func insertIndexEntry(tx *gorm.DB, post *models.Post) error {
	return tx.Exec(
		"INSERT INTO posts_fts(rowid, title, excerpt, tags, author) VALUES (?, ?, ?, ?, ?)",
		post.ID, post.Title, post.Excerpt, post.Tags, post.Author,
	).Error
}

func deleteIndexEntry(tx *gorm.DB, id uint) error {
	return tx.Exec("DELETE FROM posts_fts WHERE rowid = ?", id).Error
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
