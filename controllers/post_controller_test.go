package controllers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pinkhuff/blog-api/config"
	"github.com/pinkhuff/blog-api/models"
	"github.com/pinkhuff/blog-api/routes"
	"github.com/pinkhuff/blog-api/utils"
)

const adminPassword = "open-sesame"

func TestMain(m *testing.M) {
	hash, err := utils.HashPassword(adminPassword)
	if err != nil {
		panic(err)
	}
	os.Setenv("JWT_SECRET", "test-secret")
	os.Setenv("ADMIN_PASSWORD_HASH", hash)
	os.Setenv("GIN_MODE", "test")

	cfg := config.Load()
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	gin.SetMode(gin.TestMode)

	os.Exit(m.Run())
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Post{}))
	require.NoError(t, db.Exec(
		"CREATE VIRTUAL TABLE IF NOT EXISTS posts_fts USING fts5(title, excerpt, tags, author)").Error)

	return routes.SetupRouter(db)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(r *gin.Engine, method, url string, body any, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func doUpload(r *gin.Engine, method, url, filename, content, token string) (*httptest.ResponseRecorder, envelope) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("markdown", filename)
	_, _ = fw.Write([]byte(content))
	_ = mw.Close()

	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func login(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w, env := doJSON(r, http.MethodPost, "/api/v1/auth/login", gin.H{"password": adminPassword}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t)
	w, env := doJSON(r, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.Code)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	r := newTestRouter(t)
	w, env := doJSON(r, http.MethodPost, "/api/v1/auth/login", gin.H{"password": "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 40111, env.Code)
}

func TestCreateRequiresAuth(t *testing.T) {
	r := newTestRouter(t)
	w, _ := doUpload(r, http.MethodPost, "/api/v1/posts", "post.md",
		"---\ntitle: Nope\n---\nbody", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUploadLifecycle(t *testing.T) {
	r := newTestRouter(t)
	token := login(t, r)

	doc := "---\ntitle: Integration Post\ntags:\n  - go\n---\n# Heading\n\nIntegration body.\n"
	w, env := doUpload(r, http.MethodPost, "/api/v1/posts", "post.md", doc, token)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		ID          uint   `json:"id"`
		Slug        string `json:"slug"`
		HTMLContent string `json:"html_content"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "integration-post", created.Slug)
	assert.Contains(t, created.HTMLContent, "<h1")

	// Public fetch by slug.
	w, env = doJSON(r, http.MethodGet, "/api/v1/posts/integration-post", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fetched struct {
		Title string `json:"title"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &fetched))
	assert.Equal(t, "Integration Post", fetched.Title)

	// Same slug again conflicts.
	w, env = doUpload(r, http.MethodPost, "/api/v1/posts", "post.md", doc, token)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 40901, env.Code)

	// Replace the document.
	postURL := fmt.Sprintf("/api/v1/posts/%d", created.ID)
	doc2 := "---\ntitle: Integration Post\nslug: integration-post\n---\nRevised body.\n"
	w, _ = doUpload(r, http.MethodPut, postURL, "post.md", doc2, token)
	require.Equal(t, http.StatusOK, w.Code)

	// Delete, then the public read 404s.
	req := httptest.NewRequest(http.MethodDelete, postURL, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	w, _ = doJSON(r, http.MethodGet, "/api/v1/posts/integration-post", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateRejectsBadUploads(t *testing.T) {
	r := newTestRouter(t)
	token := login(t, r)

	// Wrong extension.
	w, env := doUpload(r, http.MethodPost, "/api/v1/posts", "post.txt",
		"---\ntitle: Text\n---\nbody", token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40042, env.Code)

	// Valid file, invalid document.
	w, env = doUpload(r, http.MethodPost, "/api/v1/posts", "post.md",
		"---\nauthor: Bob\n---\nbody", token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40044, env.Code)
}

func TestGetPostUnknownSlug(t *testing.T) {
	r := newTestRouter(t)
	w, env := doJSON(r, http.MethodGet, "/api/v1/posts/no-such-post", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40401, env.Code)
}

func TestSearchRequiresQuery(t *testing.T) {
	r := newTestRouter(t)
	w, env := doJSON(r, http.MethodGet, "/api/v1/search", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40030, env.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	r := newTestRouter(t)
	token := login(t, r)

	w, _ := doJSON(r, http.MethodPost, "/api/v1/auth/logout", nil,
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, w.Code)

	w, env := doUpload(r, http.MethodPost, "/api/v1/posts", "post.md",
		"---\ntitle: After Logout\n---\nbody", token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 40104, env.Code)
}
