package handlers

import (
	"strconv"

	"github.com/commongroundz/backend/internal/events"
	"github.com/commongroundz/backend/internal/querycache"
	"github.com/commongroundz/backend/internal/social"
	"github.com/commongroundz/backend/internal/tags"
	"gorm.io/gorm"
)

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	db     *gorm.DB
	tags   *tags.Service
	ranker *tags.Ranker
	social *social.Service
	qc     *querycache.Cache
	bus    *events.Bus
}

// NewHandlers creates a new handlers instance
func NewHandlers(db *gorm.DB, tagService *tags.Service, ranker *tags.Ranker, socialService *social.Service, qc *querycache.Cache, bus *events.Bus) *Handlers {
	return &Handlers{
		db:     db,
		tags:   tagService,
		ranker: ranker,
		social: socialService,
		qc:     qc,
		bus:    bus,
	}
}

// parseLimit reads a query-string limit, clamped to [1, max]
func parseLimit(s string, defaultValue, max int) int {
	val, err := strconv.Atoi(s)
	if err != nil || val <= 0 {
		return defaultValue
	}
	if val > max {
		return max
	}
	return val
}
