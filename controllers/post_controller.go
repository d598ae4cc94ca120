package controllers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pinkhuff/blog-api/config"
	"github.com/pinkhuff/blog-api/models"
	"github.com/pinkhuff/blog-api/services"
	"github.com/pinkhuff/blog-api/stores"
	"github.com/pinkhuff/blog-api/utils"
)

// PostController exposes the read surface and the upload-driven mutation
// flow over posts.
type PostController struct {
	store  *stores.PostStore
	ingest *services.IngestionService
}

// NewPostController creates a new PostController instance.
func NewPostController(store *stores.PostStore, ingest *services.IngestionService) *PostController {
	return &PostController{store: store, ingest: ingest}
}

// ListPosts returns paginated published posts, newest first.
func (p *PostController) ListPosts(ctx *gin.Context) {
	page, limit := parsePagination(ctx.Query("page"), ctx.Query("limit"))

	cacheKey := fmt.Sprintf("cache:posts:list:page=%d:limit=%d", page, limit)
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	posts, total, err := p.store.ListPublished(ctx.Request.Context(), limit, (page-1)*limit)
	if err != nil {
		utils.Sugar.Errorf("list posts failed: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to fetch posts")
		return
	}

	payload := gin.H{
		"posts": summaryViews(posts),
		"pagination": gin.H{
			"page":        page,
			"limit":       limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
		},
	}
	utils.CacheSetJSON(cacheKey, utils.JSONResponse{Code: 0, Message: "success", Data: payload}, time.Hour)
	utils.Success(ctx, payload)
}

// GetPost returns a single published post by slug. Each successful fetch
// increments the post's view counter, so this path is never cached.
func (p *PostController) GetPost(ctx *gin.Context) {
	slug := ctx.Param("slug")

	post, err := p.store.GetBySlug(ctx.Request.Context(), slug)
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "post not found")
			return
		}
		utils.Sugar.Errorf("get post %q failed: %v", slug, err)
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to fetch post")
		return
	}

	utils.Success(ctx, detailView(post))
}

// GetPostByID returns any post, published or not, for the authenticated
// edit flow.
func (p *PostController) GetPostByID(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}

	post, err := p.store.GetByID(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40402, "post not found")
			return
		}
		utils.Sugar.Errorf("get post %d failed: %v", id, err)
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to fetch post")
		return
	}

	utils.Success(ctx, detailView(post))
}

// SearchPosts runs a full-text query over published posts.
func (p *PostController) SearchPosts(ctx *gin.Context) {
	query := strings.TrimSpace(ctx.Query("q"))
	if query == "" {
		utils.Error(ctx, http.StatusBadRequest, 40030, "search query is required")
		return
	}
	limit := 20
	if v, err := strconv.Atoi(ctx.Query("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}

	posts, err := p.store.Search(ctx.Request.Context(), query, limit)
	if err != nil {
		utils.Sugar.Errorf("search %q failed: %v", query, err)
		utils.Error(ctx, http.StatusInternalServerError, 50024, "search failed")
		return
	}

	utils.Success(ctx, gin.H{"posts": summaryViews(posts), "query": query})
}

// ListPostsByTag returns published posts whose tags contain the given tag.
func (p *PostController) ListPostsByTag(ctx *gin.Context) {
	tag := ctx.Param("tag")
	page, limit := parsePagination(ctx.Query("page"), ctx.Query("limit"))

	cacheKey := fmt.Sprintf("cache:posts:tag=%s:page=%d:limit=%d", tag, page, limit)
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	posts, err := p.store.ListByTag(ctx.Request.Context(), tag, limit, (page-1)*limit)
	if err != nil {
		utils.Sugar.Errorf("list posts by tag %q failed: %v", tag, err)
		utils.Error(ctx, http.StatusInternalServerError, 50025, "failed to fetch posts")
		return
	}

	payload := gin.H{"posts": summaryViews(posts), "tag": tag}
	utils.CacheSetJSON(cacheKey, utils.JSONResponse{Code: 0, Message: "success", Data: payload}, time.Hour)
	utils.Success(ctx, payload)
}

// CreatePost ingests an uploaded markdown file as a new post.
func (p *PostController) CreatePost(ctx *gin.Context) {
	raw, ok := readMarkdownUpload(ctx)
	if !ok {
		return
	}

	post, err := p.ingest.SubmitNew(ctx.Request.Context(), raw)
	if err != nil {
		respondIngestError(ctx, err)
		return
	}

	utils.InvalidateByPrefix("cache:posts:")
	utils.Respond(ctx, http.StatusCreated, 0, "post created successfully", detailView(post))
}

// UpdatePost replaces an existing post's document with a re-parsed upload.
func (p *PostController) UpdatePost(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}
	raw, ok := readMarkdownUpload(ctx)
	if !ok {
		return
	}

	post, err := p.ingest.SubmitUpdate(ctx.Request.Context(), id, raw)
	if err != nil {
		respondIngestError(ctx, err)
		return
	}

	utils.InvalidateByPrefix("cache:posts:")
	utils.Success(ctx, detailView(post))
}

// DeletePost removes a post and its search-index entry.
func (p *PostController) DeletePost(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}

	if err := p.store.Delete(ctx.Request.Context(), id); err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40403, "post not found")
			return
		}
		utils.Sugar.Errorf("delete post %d failed: %v", id, err)
		utils.Error(ctx, http.StatusInternalServerError, 50026, "failed to delete post")
		return
	}

	utils.InvalidateByPrefix("cache:posts:")
	utils.Success(ctx, gin.H{"message": "post deleted successfully"})
}

// readMarkdownUpload enforces the upload boundary: a single .md file in
// the "markdown" form field, capped at the configured size. The core
// below this layer sees only the raw bytes.
func readMarkdownUpload(ctx *gin.Context) ([]byte, bool) {
	maxBytes := config.Get().MaxUploadBytes

	file, header, err := ctx.Request.FormFile("markdown")
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40040, "no file uploaded")
		return nil, false
	}
	defer file.Close()

	if header.Size > maxBytes {
		utils.Error(ctx, http.StatusBadRequest, 40041,
			fmt.Sprintf("file too large, maximum size is %dMB", maxBytes/1024/1024))
		return nil, false
	}
	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".md" {
		utils.Error(ctx, http.StatusBadRequest, 40042, "only .md (markdown) files are allowed")
		return nil, false
	}

	raw, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40043, "failed to read uploaded file")
		return nil, false
	}
	if int64(len(raw)) > maxBytes {
		utils.Error(ctx, http.StatusBadRequest, 40041,
			fmt.Sprintf("file too large, maximum size is %dMB", maxBytes/1024/1024))
		return nil, false
	}
	return raw, true
}

// respondIngestError maps the ingestion service's closed error set onto
// distinct responses: bad input, conflict, not found, or opaque failure.
func respondIngestError(ctx *gin.Context, err error) {
	var dup *stores.DuplicateSlugError
	switch {
	case services.IsInputError(err):
		utils.ErrorWithData(ctx, http.StatusBadRequest, 40044, "invalid markdown file",
			gin.H{"details": []string{err.Error()}})
	case errors.As(err, &dup):
		utils.ErrorWithData(ctx, http.StatusConflict, 40901, "a post with this slug already exists",
			gin.H{"slug": dup.Slug})
	case errors.Is(err, stores.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40404, "post not found")
	default:
		utils.Sugar.Errorf("ingestion failed: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50027, "failed to save post")
	}
}

// summaryView carries enough fields to render a list entry or search
// result snippet; bodies stay out of list responses.
func summaryView(post *models.Post) gin.H {
	return gin.H{
		"id":         post.ID,
		"title":      post.Title,
		"slug":       post.Slug,
		"excerpt":    post.Excerpt,
		"author":     post.Author,
		"tags":       post.TagList(),
		"view_count": post.ViewCount,
		"created_at": post.CreatedAt,
		"updated_at": post.UpdatedAt,
	}
}

func summaryViews(posts []models.Post) []gin.H {
	views := make([]gin.H, 0, len(posts))
	for i := range posts {
		views = append(views, summaryView(&posts[i]))
	}
	return views
}

func detailView(post *models.Post) gin.H {
	view := summaryView(post)
	view["content"] = post.Content
	view["html_content"] = post.HTMLContent
	view["published"] = post.Published
	return view
}

func parsePagination(pageStr, limitStr string) (int, int) {
	page := 1
	limit := 10
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	return page, limit
}

func parseID(ctx *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil || id == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40050, "invalid post id")
		return 0, false
	}
	return uint(id), true
}
