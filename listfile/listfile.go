// Package listfile implements the external-name -> file-id cache of
//: fetches a semicolon-delimited "id;path" list from a
// configured URL, cached in-process with ETag and a 5-minute
// negative-result cool-down; lookups are case-insensitive on path.
package listfile

import (
	"bufio"
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jimbomcb/wow-minimaps/errs"
)

// NegativeCooldown is the TTL a failed lookup is remembered for before
// being retried.
const NegativeCooldown = 5 * time.Minute

// Fetcher retrieves the raw listfile body plus, on a 304, a flag that the
// prior body is still current. Implemented against net/http by HTTPFetcher
// in production; tests supply an in-memory fake.
type Fetcher interface {
	Fetch(ctx context.Context, url, etag string) (body []byte, newETag string, notModified bool, err error)
}

// Cache is the in-process listfile cache. Entries map lowercased path to
// file id; a separate negative cache remembers recent misses so repeated
// lookups of an absent path don't force a full listfile refetch.
type Cache struct {
	fetcher Fetcher
	url     string

	mu       sync.RWMutex
	byPath   map[string]uint32
	etag     string
	lastLoad time.Time

	negatives *lru.Cache[string, time.Time]
}

// New builds a Cache that fetches from url via fetcher.
func New(fetcher Fetcher, url string) (*Cache, error) {
	neg, err := lru.New[string, time.Time](4096)
	if err != nil {
		return nil, errs.WrapFmt(err, "listfile: allocating negative cache")
	}
	return &Cache{fetcher: fetcher, url: url, byPath: map[string]uint32{}, negatives: neg}, nil
}

// Resolve looks up path (case-insensitive). A path absent from the loaded
// listfile and not held in the negative cache triggers a (conditional)
// refetch of the listfile before the miss is recorded. Returns (id, true, nil) on a hit,
// (0, false, nil) on a confirmed miss, and a non-nil error only for
// transport failures.
func (c *Cache) Resolve(ctx context.Context, path string) (uint32, bool, error) {
	key := strings.ToLower(path)

	c.mu.RLock()
	loaded := !c.lastLoad.IsZero()
	if id, ok := c.byPath[key]; ok {
		c.mu.RUnlock()
		return id, true, nil
	}
	c.mu.RUnlock()

	if loaded {
		if until, ok := c.negatives.Get(key); ok && time.Now().Before(until) {
			return 0, false, nil
		}
	}

	if err := c.refresh(ctx); err != nil {
		return 0, false, err
	}

	c.mu.RLock()
	id, ok := c.byPath[key]
	c.mu.RUnlock()
	if !ok {
		c.negatives.Add(key, time.Now().Add(NegativeCooldown))
		return 0, false, nil
	}
	return id, true, nil
}

func (c *Cache) refresh(ctx context.Context) error {
	c.mu.RLock()
	etag := c.etag
	c.mu.RUnlock()

	body, newETag, notModified, err := c.fetcher.Fetch(ctx, c.url, etag)
	if err != nil {
		return errs.WrapFmt(err, "listfile: fetching %s", c.url)
	}
	if notModified {
		c.mu.Lock()
		c.lastLoad = time.Now()
		c.mu.Unlock()
		return nil
	}

	parsed, err := parse(body)
	if err != nil {
		return errs.WrapFmt(err, "listfile: parsing body from %s", c.url)
	}

	c.mu.Lock()
	c.byPath = parsed
	c.etag = newETag
	c.lastLoad = time.Now()
	c.mu.Unlock()
	return nil
}

func parse(body []byte) (map[string]uint32, error) {
	out := map[string]uint32{}
	scanner := bufio.NewScanner(strings.NewReader(string(body)))
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ";", 2)
		if len(parts) != 2 {
			continue
		}
		id, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			continue
		}
		out[strings.ToLower(parts[1])] = uint32(id)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// HTTPFetcher is the production Fetcher, backed by net/http with ETag
// support.
type HTTPFetcher struct {
	Client *http.Client
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url, etag string) ([]byte, string, bool, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", false, err
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, etag, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", false, errs.Fmt("listfile: unexpected status %d", resp.StatusCode)
	}

	buf := make([]byte, 0, 1<<20)
	reader := bufio.NewReader(resp.Body)
	chunk := make([]byte, 64*1024)
	for {
		n, rerr := reader.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if rerr != nil {
			break
		}
	}
	return buf, resp.Header.Get("ETag"), false, nil
}
