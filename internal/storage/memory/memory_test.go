package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quakeview/server/internal/model"
)

func TestPutGet(t *testing.T) {
	b := New()
	require.NoError(t, b.Init())
	defer b.Close()

	key := model.AssetKey{Kind: "level", Name: "e1m1", Version: 13}
	payload := []byte(`{"frames":[]}`)
	require.NoError(t, b.Put(key, payload, model.AssetMeta{}))

	payload[0] = 'x'
	got, ok, err := b.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"frames":[]}`, string(got))

	got[0] = 'y'
	again, _, _ := b.Get(key)
	assert.Equal(t, `{"frames":[]}`, string(again))
}

func TestGet_Miss(t *testing.T) {
	b := New()
	_, ok, err := b.Get(model.AssetKey{Kind: "model", Name: "progs/player.mdl", Version: 13})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPrune(t *testing.T) {
	b := New()
	require.NoError(t, b.Put(model.AssetKey{Kind: "level", Name: "e1m1", Version: 12}, []byte("old"), model.AssetMeta{}))
	require.NoError(t, b.Put(model.AssetKey{Kind: "level", Name: "e1m2", Version: 12}, []byte("old"), model.AssetMeta{}))
	require.NoError(t, b.Put(model.AssetKey{Kind: "level", Name: "e1m1", Version: 13}, []byte("new"), model.AssetMeta{}))

	n, err := b.Prune(13)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, b.Len())
}
