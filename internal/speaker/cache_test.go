package speaker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-orchestrator/internal/core"
	"github.com/book-expert/voice-orchestrator/internal/speaker"
)

var errMockSample = errors.New("mock sample error")

// mockSampler hands out embeddings [1], [2], ... in call order.
type mockSampler struct {
	calls            atomic.Int32
	sampleShouldFail bool
}

func (m *mockSampler) SampleSpeaker(_ context.Context) ([]float32, error) {
	n := m.calls.Add(1)

	if m.sampleShouldFail {
		return nil, errMockSample
	}

	return []float32{float32(n)}, nil
}

func TestResolve_CreatesAndReuses(t *testing.T) {
	t.Parallel()

	sampler := &mockSampler{}
	cache, err := speaker.NewCache(4, sampler)
	require.NoError(t, err)

	ctx := context.Background()

	first, err := cache.Resolve(ctx, "")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, []float32{1}, first.Embedding)

	again, err := cache.Resolve(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, int32(1), sampler.calls.Load())

	named, err := cache.Resolve(ctx, "narrator")
	require.NoError(t, err)
	assert.Equal(t, "narrator", named.ID)
	assert.Equal(t, []float32{2}, named.Embedding)

	assert.ElementsMatch(t, []string{first.ID, "narrator"}, cache.IDs())
	assert.Equal(t, 2, cache.Len())
}

func TestResolve_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	cache, err := speaker.NewCache(2, &mockSampler{})
	require.NoError(t, err)

	ctx := context.Background()

	_, err = cache.Resolve(ctx, "a")
	require.NoError(t, err)
	_, err = cache.Resolve(ctx, "b")
	require.NoError(t, err)
	_, err = cache.Resolve(ctx, "a")
	require.NoError(t, err)
	_, err = cache.Resolve(ctx, "c")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "c"}, cache.IDs())
}

func TestResolve_ConcurrentCreatesAgree(t *testing.T) {
	t.Parallel()

	cache, err := speaker.NewCache(8, &mockSampler{})
	require.NoError(t, err)

	const callers = 16

	results := make([]core.SpeakerProfile, callers)

	var wg sync.WaitGroup

	for i := range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			profile, resolveErr := cache.Resolve(context.Background(), "shared")
			assert.NoError(t, resolveErr)

			results[i] = profile
		}()
	}

	wg.Wait()

	for _, profile := range results {
		assert.Equal(t, results[0].Embedding, profile.Embedding)
	}
}

func TestResolve_SamplerFailure(t *testing.T) {
	t.Parallel()

	cache, err := speaker.NewCache(2, &mockSampler{sampleShouldFail: true})
	require.NoError(t, err)

	_, err = cache.Resolve(context.Background(), "x")
	require.ErrorIs(t, err, errMockSample)
	assert.Equal(t, 0, cache.Len())
}

func TestResolve_RejectsLongID(t *testing.T) {
	t.Parallel()

	cache, err := speaker.NewCache(2, &mockSampler{})
	require.NoError(t, err)

	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}

	_, err = cache.Resolve(context.Background(), string(long))
	require.ErrorIs(t, err, core.ErrValidation)
}

func TestNewCache_InvalidSize(t *testing.T) {
	t.Parallel()

	_, err := speaker.NewCache(0, &mockSampler{})
	require.Error(t, err)
}
