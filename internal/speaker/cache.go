// Package speaker caches the voices used for synthesis. A speaker is an
// opaque embedding sampled once from the synthesis backend; reusing its id
// keeps the same voice across replies.
package speaker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/book-expert/voice-orchestrator/internal/core"
)

const maxSpeakerIDLength = 128

// Sampler produces fresh speaker embeddings.
type Sampler interface {
	SampleSpeaker(ctx context.Context) ([]float32, error)
}

// Cache is a capacity-bounded LRU of speaker profiles. Profiles are never
// mutated once inserted; when two callers race to create the same id the
// first insert wins and both observe it.
type Cache struct {
	entries *lru.Cache[string, core.SpeakerProfile]
	sampler Sampler
	now     func() time.Time
}

// NewCache creates a cache holding at most size speakers.
func NewCache(size int, sampler Sampler) (*Cache, error) {
	entries, err := lru.New[string, core.SpeakerProfile](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create speaker cache: %w", err)
	}

	return &Cache{
		entries: entries,
		sampler: sampler,
		now:     time.Now,
	}, nil
}

// Resolve returns the profile for id. An empty id, or an id that is not
// resident, is given a freshly sampled embedding which is then cached.
func (c *Cache) Resolve(ctx context.Context, id string) (core.SpeakerProfile, error) {
	id = strings.TrimSpace(id)
	if len(id) > maxSpeakerIDLength {
		return core.SpeakerProfile{}, core.Invalid("speaker id longer than %d characters", maxSpeakerIDLength)
	}

	if id != "" {
		if profile, ok := c.entries.Get(id); ok {
			return profile, nil
		}
	} else {
		id = uuid.NewString()
	}

	embedding, err := c.sampler.SampleSpeaker(ctx)
	if err != nil {
		return core.SpeakerProfile{}, fmt.Errorf("failed to sample speaker %s: %w", id, err)
	}

	profile := core.SpeakerProfile{
		ID:        id,
		Embedding: append([]float32(nil), embedding...),
		CreatedAt: c.now(),
	}

	if previous, found, _ := c.entries.PeekOrAdd(id, profile); found {
		return previous, nil
	}

	return profile, nil
}

// IDs lists resident speaker ids from least to most recently used.
func (c *Cache) IDs() []string {
	return c.entries.Keys()
}

// Len returns the number of resident speakers.
func (c *Cache) Len() int {
	return c.entries.Len()
}
