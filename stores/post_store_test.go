package stores

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pinkhuff/blog-api/models"
)

func newTestStore(t *testing.T) *PostStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.Exec("PRAGMA busy_timeout=5000").Error)
	require.NoError(t, db.AutoMigrate(&models.Post{}))
	require.NoError(t, db.Exec(
		"CREATE VIRTUAL TABLE IF NOT EXISTS posts_fts USING fts5(title, excerpt, tags, author)").Error)

	return NewPostStore(db)
}

func testPost(slug string) *models.Post {
	return &models.Post{
		Title:       "Title for " + slug,
		Slug:        slug,
		Content:     "# Heading\n\nBody for " + slug,
		HTMLContent: "<h1>Heading</h1><p>Body for " + slug + "</p>",
		Excerpt:     "Body for " + slug,
		Author:      "Pinkhuff",
		Tags:        "go,testing",
		Published:   true,
	}
}

func TestCreateAndGetBySlug(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	post := testPost("first-post")
	require.NoError(t, store.Create(ctx, post))
	assert.NotZero(t, post.ID)

	got, err := store.GetBySlug(ctx, "first-post")
	require.NoError(t, err)
	assert.Equal(t, post.Title, got.Title)
	assert.Equal(t, post.Content, got.Content)
	assert.Equal(t, post.HTMLContent, got.HTMLContent)
	assert.Equal(t, post.Author, got.Author)
	assert.ElementsMatch(t, []string{"go", "testing"}, got.TagList())
}

func TestCreateDuplicateSlug(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testPost("taken")))

	err := store.Create(ctx, testPost("taken"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateSlug)

	var dup *DuplicateSlugError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "taken", dup.Slug)
}

func TestConcurrentCreateSameSlug(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Create(ctx, testPost("contested"))
		}(i)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, ErrDuplicateSlug):
			conflicts++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
}

func TestGetBySlugIncrementsViewCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	post := testPost("counted")
	require.NoError(t, store.Create(ctx, post))

	const fetches = 5
	for i := 0; i < fetches; i++ {
		_, err := store.GetBySlug(ctx, "counted")
		require.NoError(t, err)
	}

	got, err := store.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(fetches), got.ViewCount)
}

func TestGetBySlugHidesUnpublished(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	post := testPost("hidden")
	post.Published = false
	require.NoError(t, store.Create(ctx, post))

	_, err := store.GetBySlug(ctx, "hidden")
	assert.ErrorIs(t, err, ErrNotFound)

	// Still addressable by id for the edit flow.
	got, err := store.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.False(t, got.Published)
}

func TestUpdateReplacesDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	post := testPost("evolving")
	require.NoError(t, store.Create(ctx, post))

	// Accumulate some views so preservation is observable.
	_, err := store.GetBySlug(ctx, "evolving")
	require.NoError(t, err)

	created, err := store.GetByID(ctx, post.ID)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	replacement := testPost("evolving")
	replacement.Title = "New Title"
	replacement.Tags = "updated"
	require.NoError(t, store.Update(ctx, post.ID, replacement))

	assert.Equal(t, post.ID, replacement.ID)
	assert.Equal(t, "New Title", replacement.Title)
	assert.Equal(t, created.CreatedAt, replacement.CreatedAt)
	assert.Equal(t, created.ViewCount, replacement.ViewCount)
	assert.True(t, replacement.UpdatedAt.After(created.UpdatedAt))
}

func TestUpdateSlugConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testPost("occupied")))
	victim := testPost("movable")
	require.NoError(t, store.Create(ctx, victim))

	replacement := testPost("occupied")
	err := store.Update(ctx, victim.ID, replacement)
	assert.ErrorIs(t, err, ErrDuplicateSlug)
}

func TestUpdateNotFound(t *testing.T) {
	store := newTestStore(t)
	err := store.Update(context.Background(), 9999, testPost("ghost"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRemovesRowAndIndexEntry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	post := testPost("doomed")
	post.Title = "Uniquely Doomed Headline"
	require.NoError(t, store.Create(ctx, post))

	results, err := store.Search(ctx, "doomed", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	require.NoError(t, store.Delete(ctx, post.ID))

	_, err = store.GetByID(ctx, post.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	results, err = store.Search(ctx, "doomed", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteNotFound(t *testing.T) {
	store := newTestStore(t)
	assert.ErrorIs(t, store.Delete(context.Background(), 12345), ErrNotFound)
}

func TestListPublishedOrderAndCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, slug := range []string{"one", "two", "three"} {
		p := testPost(slug)
		require.NoError(t, store.Create(ctx, p))
		time.Sleep(5 * time.Millisecond)
	}
	draft := testPost("draft")
	draft.Published = false
	require.NoError(t, store.Create(ctx, draft))

	posts, total, err := store.ListPublished(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, posts, 2)
	assert.Equal(t, "three", posts[0].Slug)
	assert.Equal(t, "two", posts[1].Slug)

	// Reads do not change view counts.
	got, err := store.GetByID(ctx, posts[0].ID)
	require.NoError(t, err)
	assert.Zero(t, got.ViewCount)
}

func TestSearchPublishedOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	visible := testPost("visible")
	visible.Title = "Kubernetes Networking Deep Dive"
	require.NoError(t, store.Create(ctx, visible))

	hidden := testPost("invisible")
	hidden.Title = "Kubernetes Secrets Management"
	hidden.Published = false
	require.NoError(t, store.Create(ctx, hidden))

	results, err := store.Search(ctx, "kubernetes", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "visible", results[0].Slug)
	assert.NotEmpty(t, results[0].Title)
	assert.NotEmpty(t, results[0].Excerpt)
}

func TestUpdateUnpublishRemovesIndexEntry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	post := testPost("flappy")
	post.Title = "Observability Primer"
	require.NoError(t, store.Create(ctx, post))

	results, err := store.Search(ctx, "observability", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	replacement := testPost("flappy")
	replacement.Title = "Observability Primer"
	replacement.Published = false
	require.NoError(t, store.Update(ctx, post.ID, replacement))

	results, err = store.Search(ctx, "observability", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Republish restores exactly one entry.
	replacement.Published = true
	require.NoError(t, store.Update(ctx, post.ID, replacement))

	results, err = store.Search(ctx, "observability", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestListByTag(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tagged := testPost("tagged")
	tagged.Tags = "go,databases"
	require.NoError(t, store.Create(ctx, tagged))

	other := testPost("other")
	other.Tags = "rust"
	require.NoError(t, store.Create(ctx, other))

	posts, err := store.ListByTag(ctx, "databases", 10, 0)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "tagged", posts[0].Slug)

	posts, err = store.ListByTag(ctx, "nosuchtag", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestSlugExists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	post := testPost("present")
	require.NoError(t, store.Create(ctx, post))

	exists, err := store.SlugExists(ctx, "present", 0)
	require.NoError(t, err)
	assert.True(t, exists)

	// The post's own id is excluded during update conflict checks.
	exists, err = store.SlugExists(ctx, "present", post.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = store.SlugExists(ctx, "absent", 0)
	require.NoError(t, err)
	assert.False(t, exists)
}
