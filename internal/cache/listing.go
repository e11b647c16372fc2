// Package cache keeps rendered listing responses so repeated gallery reads do
// not hit the metadata store. Any write to photos or comments purges it.
package cache

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"barbeintiaden/photo-archive/internal/metrics"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultTTL = 30 * time.Second

type entry struct {
	status      int
	contentType string
	body        []byte
	storedAt    time.Time
}

// Listing is an LRU of GET responses keyed by request URI. A nil *Listing is
// a disabled cache.
type Listing struct {
	entries *lru.Cache[string, entry]
	ttl     time.Duration
	now     func() time.Time

	// mu orders stores against purges. generation changes on every purge; a
	// response computed across a purge is not stored.
	mu         sync.Mutex
	generation uint64
}

// NewListing returns a cache of up to size responses, each valid for ttl.
// It returns nil when size is not positive.
func NewListing(size int, ttl time.Duration) (*Listing, error) {
	if size <= 0 {
		return nil, nil
	}
	entries, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Listing{entries: entries, ttl: ttl, now: time.Now}, nil
}

// Invalidate drops every cached response.
func (l *Listing) Invalidate() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.generation++
	l.entries.Purge()
}

func (l *Listing) currentGeneration() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generation
}

// put stores e unless a purge happened since gen was read.
func (l *Listing) put(key string, gen uint64, e entry) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.generation != gen {
		return false
	}
	l.entries.Add(key, e)
	return true
}

// Len reports the number of cached responses.
func (l *Listing) Len() int {
	if l == nil {
		return 0
	}
	return l.entries.Len()
}

func (l *Listing) get(key string) (entry, bool) {
	e, ok := l.entries.Get(key)
	if !ok {
		return entry{}, false
	}
	if l.now().Sub(e.storedAt) > l.ttl {
		l.entries.Remove(key)
		return entry{}, false
	}
	return e, true
}

type recordingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware serves GET requests from the cache and stores successful
// responses. It must run after authentication so anonymous callers, who see
// an empty archive, never share entries with signed-in ones.
func (l *Listing) Middleware(viewerKey func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := viewerKey(c) + " " + c.Request.URL.RequestURI()
		if e, ok := l.get(key); ok {
			metrics.ListingCacheTotal.WithLabelValues("hit").Inc()
			c.Header("X-Cache", "HIT")
			c.Data(e.status, e.contentType, e.body)
			c.Abort()
			return
		}
		metrics.ListingCacheTotal.WithLabelValues("miss").Inc()

		gen := l.currentGeneration()
		w := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		if w.Status() != http.StatusOK {
			return
		}
		l.put(key, gen, entry{
			status:      w.Status(),
			contentType: w.Header().Get("Content-Type"),
			body:        w.body.Bytes(),
			storedAt:    l.now(),
		})
	}
}
