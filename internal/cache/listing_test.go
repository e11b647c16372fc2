package cache

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, l *Listing, calls *int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(l.Middleware(func(*gin.Context) string { return "viewer" }))
	r.GET("/photos", func(c *gin.Context) {
		*calls++
		c.JSON(http.StatusOK, gin.H{"calls": *calls})
	})
	r.GET("/broken", func(c *gin.Context) {
		*calls++
		c.JSON(http.StatusInternalServerError, gin.H{"error": "boom"})
	})
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestListingServesRepeatsFromCache(t *testing.T) {
	l, err := NewListing(8, time.Minute)
	require.NoError(t, err)
	calls := 0
	r := newRouter(t, l, &calls)

	first := get(r, "/photos?year=2023")
	second := get(r, "/photos?year=2023")

	assert.Equal(t, 1, calls)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Contains(t, second.Header().Get("Content-Type"), "application/json")

	get(r, "/photos?year=2019")
	assert.Equal(t, 2, calls)
}

func TestListingInvalidate(t *testing.T) {
	l, err := NewListing(8, time.Minute)
	require.NoError(t, err)
	calls := 0
	r := newRouter(t, l, &calls)

	get(r, "/photos")
	l.Invalidate()
	assert.Equal(t, 0, l.Len())
	get(r, "/photos")
	assert.Equal(t, 2, calls)
}

func TestListingDropsResponseComputedAcrossPurge(t *testing.T) {
	l, err := NewListing(8, time.Minute)
	require.NoError(t, err)
	gin.SetMode(gin.TestMode)
	calls := 0
	r := gin.New()
	r.Use(l.Middleware(func(*gin.Context) string { return "viewer" }))
	r.GET("/photos", func(c *gin.Context) {
		calls++
		if calls == 1 {
			// A write lands while the first listing is being rendered.
			l.Invalidate()
		}
		c.JSON(http.StatusOK, gin.H{"calls": calls})
	})

	get(r, "/photos")
	assert.Equal(t, 0, l.Len())
	get(r, "/photos")
	get(r, "/photos")
	assert.Equal(t, 2, calls)

	gen := l.currentGeneration()
	l.Invalidate()
	assert.False(t, l.put("viewer /years", gen, entry{status: http.StatusOK}))
	assert.True(t, l.put("viewer /years", l.currentGeneration(), entry{status: http.StatusOK}))
}

func TestListingSkipsErrors(t *testing.T) {
	l, err := NewListing(8, time.Minute)
	require.NoError(t, err)
	calls := 0
	r := newRouter(t, l, &calls)

	get(r, "/broken")
	get(r, "/broken")
	assert.Equal(t, 2, calls)
}

func TestListingExpires(t *testing.T) {
	l, err := NewListing(8, time.Second)
	require.NoError(t, err)
	now := time.Now()
	l.now = func() time.Time { return now }
	calls := 0
	r := newRouter(t, l, &calls)

	get(r, "/photos")
	now = now.Add(2 * time.Second)
	get(r, "/photos")
	assert.Equal(t, 2, calls)
}

func TestDisabledListing(t *testing.T) {
	l, err := NewListing(0, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, l)
	l.Invalidate()

	calls := 0
	r := newRouter(t, l, &calls)
	get(r, "/photos")
	get(r, "/photos")
	assert.Equal(t, 2, calls)
}
