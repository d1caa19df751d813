package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/commongroundz/backend/internal/database"
	"github.com/commongroundz/backend/internal/events"
	"github.com/commongroundz/backend/internal/logger"
	"github.com/commongroundz/backend/internal/middleware"
	"github.com/commongroundz/backend/internal/models"
	"github.com/commongroundz/backend/internal/querycache"
	"github.com/commongroundz/backend/internal/social"
	"github.com/commongroundz/backend/internal/tags"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testSecret = []byte("test-secret")

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.Initialize("error", os.DevNull)
	os.Exit(m.Run())
}

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	qc     *querycache.Cache
}

func setupEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Entity{}, &models.Post{}, &models.Review{},
		&models.Tag{}, &models.PostTag{}, &models.Follow{},
	))

	bus := events.NewBus()
	qc := querycache.New(querycache.Options{})
	qc.BindBus(bus)

	store := tags.NewGormStore(db)
	tagService := tags.NewService(store, bus)
	ranker := tags.NewRanker(store, nil)
	socialService := social.NewService(db, qc, bus)

	h := NewHandlers(db, tagService, ranker, socialService, qc, bus)

	router := gin.New()
	api := router.Group("/api")
	{
		api.GET("/hashtags/trending", h.GetTrendingTags)
		api.GET("/hashtags/:tag/related", h.GetRelatedTags)
		api.GET("/hashtags/:tag/posts", h.GetPostsByTag)
		api.GET("/entities/:slug", h.GetEntity)
		api.GET("/entities/:slug/stats", h.GetEntityStats)
		api.GET("/users/:id/follow-counts", h.GetFollowCounts)

		authed := api.Group("", middleware.AuthMiddleware(testSecret))
		{
			authed.POST("/posts", h.CreatePost)
			authed.PUT("/posts/:id", h.UpdatePost)
			authed.POST("/users/:id/follow", h.FollowUser)
			authed.DELETE("/users/:id/follow", h.UnfollowUser)
			authed.POST("/session/visibility", h.ReportVisibility)
		}
	}
	router.GET("/health", h.Health)

	return &testEnv{router: router, db: db, qc: qc}
}

func (e *testEnv) seedUser(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, e.db.Create(&models.User{
		ID: id, Username: id, DisplayName: id,
	}).Error)
}

func (e *testEnv) request(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := middleware.GenerateToken(testSecret, userID, userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestCreatePostPersistsHashtags(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "alice")

	w := env.request(t, http.MethodPost, "/api/posts", "alice", gin.H{
		"title":   "Best #Coffee in town",
		"content": "try the filter #coffee at Koshys #Bangalore",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var tag models.Tag
	require.NoError(t, env.db.First(&tag, "normalized_key = ?", "coffee").Error)
	assert.Equal(t, "Coffee", tag.DisplayText) // original casing of first sighting
	assert.Equal(t, 1, tag.UsageCount)

	// Fresh struct: reusing tag would carry its primary key into the query.
	var bangalore models.Tag
	require.NoError(t, env.db.First(&bangalore, "normalized_key = ?", "bangalore").Error)

	// The post is discoverable through its hashtag
	w = env.request(t, http.MethodGet, "/api/hashtags/coffee/posts", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Koshys")
}

func TestCreatePostRequiresAuth(t *testing.T) {
	env := setupEnv(t)

	w := env.request(t, http.MethodPost, "/api/posts", "", gin.H{"content": "hello"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreatePostValidation(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "alice")

	w := env.request(t, http.MethodPost, "/api/posts", "alice", gin.H{"title": "no content"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.request(t, http.MethodPost, "/api/posts", "alice", gin.H{
		"content": "rated", "rating": 9,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestUpdatePostReprocessesHashtags(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "alice")

	w := env.request(t, http.MethodPost, "/api/posts", "alice", gin.H{
		"content": "#coffee #tea",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Post models.Post `json:"post"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	postID := resp.Post.ID

	w = env.request(t, http.MethodPut, "/api/posts/"+postID, "alice", gin.H{
		"content": "just #coffee now",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var assocCount int64
	require.NoError(t, env.db.Model(&models.PostTag{}).Where("post_id = ?", postID).Count(&assocCount).Error)
	assert.Equal(t, int64(1), assocCount)

	// usage_count never decrements on edit
	var tea models.Tag
	require.NoError(t, env.db.First(&tea, "normalized_key = ?", "tea").Error)
	assert.Equal(t, 1, tea.UsageCount)
}

func TestUpdatePostOwnershipEnforced(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "alice")
	env.seedUser(t, "mallory")

	w := env.request(t, http.MethodPost, "/api/posts", "alice", gin.H{"content": "mine"})
	require.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		Post models.Post `json:"post"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	w = env.request(t, http.MethodPut, "/api/posts/"+resp.Post.ID, "mallory", gin.H{"content": "stolen"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTrendingEndpoint(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "alice")

	for _, content := range []string{"#coffee one", "#coffee two", "#tea one"} {
		w := env.request(t, http.MethodPost, "/api/posts", "alice", gin.H{"content": content})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := env.request(t, http.MethodGet, "/api/hashtags/trending?limit=5", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Tags []models.Tag `json:"tags"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Tags, 2)
	assert.Equal(t, "coffee", resp.Tags[0].NormalizedKey)
	assert.Equal(t, 2, resp.Tags[0].UsageCount)
}

func TestRelatedEndpointRejectsInvalidTag(t *testing.T) {
	env := setupEnv(t)

	w := env.request(t, http.MethodGet, "/api/hashtags/123/related", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRelatedEndpointFindsCoOccurringTags(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "alice")

	w := env.request(t, http.MethodPost, "/api/posts", "alice", gin.H{"content": "#coffee and #brunch"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.request(t, http.MethodGet, "/api/hashtags/coffee/related", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Related []models.Tag `json:"related"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Related)
	assert.Equal(t, "brunch", resp.Related[0].NormalizedKey)
}

func TestGetEntity(t *testing.T) {
	env := setupEnv(t)
	require.NoError(t, env.db.Create(&models.Entity{
		Name: "Koshys", Slug: "koshys", Type: models.EntityTypePlace,
	}).Error)

	w := env.request(t, http.MethodGet, "/api/entities/koshys", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Koshys")

	w = env.request(t, http.MethodGet, "/api/entities/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetEntityStats(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "alice")

	entity := models.Entity{Name: "Koshys", Slug: "koshys", Type: models.EntityTypePlace}
	require.NoError(t, env.db.Create(&entity).Error)

	for _, rating := range []int{4, 2} {
		require.NoError(t, env.db.Create(&models.Review{
			UserID: "alice", EntityID: entity.ID, Rating: rating,
		}).Error)
	}
	w := env.request(t, http.MethodPost, "/api/posts", "alice", gin.H{
		"content": "about this place", "entity_id": entity.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.request(t, http.MethodGet, "/api/entities/koshys/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Stats EntityStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Stats.ReviewCount)
	assert.InDelta(t, 3.0, resp.Stats.AverageRating, 0.001)
	assert.Equal(t, 1, resp.Stats.PostCount)
}

func TestFollowEndpoints(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "alice")
	env.seedUser(t, "bob")

	w := env.request(t, http.MethodPost, "/api/users/bob/follow", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"created":true`)

	// Idempotent: refollow succeeds without creating
	w = env.request(t, http.MethodPost, "/api/users/bob/follow", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"created":false`)

	w = env.request(t, http.MethodGet, "/api/users/bob/follow-counts", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"followers":1`)

	w = env.request(t, http.MethodDelete, "/api/users/bob/follow", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"removed":true`)

	// Unknown target 404s
	w = env.request(t, http.MethodPost, "/api/users/ghost/follow", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReportVisibility(t *testing.T) {
	env := setupEnv(t)
	env.seedUser(t, "alice")

	w := env.request(t, http.MethodPost, "/api/session/visibility", "alice", gin.H{"visible": true})
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.request(t, http.MethodPost, "/api/session/visibility", "alice", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthReportsDatabase(t *testing.T) {
	env := setupEnv(t)

	prev := database.DB
	database.DB = env.db
	defer func() { database.DB = prev }()

	w := env.request(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
