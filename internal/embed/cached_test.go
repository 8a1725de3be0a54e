package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedder_SkipsRepeatedTexts(t *testing.T) {
	// Given: a cached embedder over a counting provider
	p := &scriptedProvider{}
	c := NewCachedEmbedder(NewResilient(p, ResilientConfig{Clock: newFakeClock()}), 10)
	ctx := context.Background()

	// When: the same question is embedded twice
	first, err := c.Embed(ctx, "what is docrag?")
	require.NoError(t, err)
	second, err := c.Embed(ctx, "what is docrag?")
	require.NoError(t, err)

	// Then: the provider was called once
	assert.Equal(t, first, second)
	assert.Equal(t, 1, p.Calls())
}

func TestCachedEmbedder_BatchOnlyEmbedsMisses(t *testing.T) {
	p := &scriptedProvider{}
	c := NewCachedEmbedder(NewResilient(p, ResilientConfig{Clock: newFakeClock()}), 10)
	ctx := context.Background()

	_, err := c.Embed(ctx, "b")
	require.NoError(t, err)

	vecs, err := c.EmbedBatch(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)

	require.Len(t, vecs, 3)
	require.Len(t, p.batches, 2)
	assert.Equal(t, []string{"a", "c"}, p.batches[1])

	direct, err := NewStaticProvider().Embed(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, direct, vecs)
	assert.Equal(t, "scripted", c.ModelName())
}
