package roster

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a redis read-through cache over the validation lookups.
// Sync batches repeat the same student/faculty/section ids many times,
// so a short TTL takes most of the lookup load off Postgres. Redis
// failures fall through to the repository.
type Cache struct {
	repo   *Repository
	client *redis.Client
	ttl    time.Duration
}

// NewCache wraps repo with a lookup cache. A nil client disables caching.
func NewCache(repo *Repository, client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{repo: repo, client: client, ttl: ttl}
}

// StudentByID returns a student or nil, consulting the cache first.
func (c *Cache) StudentByID(ctx context.Context, id string) (*Student, error) {
	var s Student
	if c.fetch(ctx, "roster:student:"+id, &s) {
		return &s, nil
	}
	got, err := c.repo.StudentByID(ctx, id)
	if err != nil || got == nil {
		return got, err
	}
	c.put(ctx, "roster:student:"+id, got)
	return got, nil
}

// FacultyByID returns a faculty member or nil, consulting the cache first.
func (c *Cache) FacultyByID(ctx context.Context, id string) (*Faculty, error) {
	var f Faculty
	if c.fetch(ctx, "roster:faculty:"+id, &f) {
		return &f, nil
	}
	got, err := c.repo.FacultyByID(ctx, id)
	if err != nil || got == nil {
		return got, err
	}
	c.put(ctx, "roster:faculty:"+id, got)
	return got, nil
}

// SectionByID returns a section or nil, consulting the cache first.
func (c *Cache) SectionByID(ctx context.Context, id string) (*Section, error) {
	var s Section
	if c.fetch(ctx, "roster:section:"+id, &s) {
		return &s, nil
	}
	got, err := c.repo.SectionByID(ctx, id)
	if err != nil || got == nil {
		return got, err
	}
	c.put(ctx, "roster:section:"+id, got)
	return got, nil
}

// InvalidateStudent drops a cached student after a write.
func (c *Cache) InvalidateStudent(ctx context.Context, id string) {
	c.drop(ctx, "roster:student:"+id)
}

// InvalidateSection drops a cached section after a write.
func (c *Cache) InvalidateSection(ctx context.Context, id string) {
	c.drop(ctx, "roster:section:"+id)
}

func (c *Cache) fetch(ctx context.Context, key string, dst any) bool {
	if c.client == nil {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func (c *Cache) put(ctx context.Context, key string, val any) {
	if c.client == nil {
		return
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, key, raw, c.ttl).Err()
}

func (c *Cache) drop(ctx context.Context, key string) {
	if c.client == nil {
		return
	}
	_ = c.client.Del(ctx, key).Err()
}
