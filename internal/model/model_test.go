package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestTableNames(t *testing.T) {
	assert.Equal(t, "cached_assets", (&CachedAsset{}).TableName())
}

func TestCachedAsset_JSON(t *testing.T) {
	meta, err := json.Marshal(AssetMeta{Textures: 3, Faces: 120})
	require.NoError(t, err)

	a := CachedAsset{
		Kind:     "level",
		Name:     "e1m1",
		Version:  13,
		Encoding: EncodingZstd,
		Size:     1024,
		Payload:  []byte{1, 2, 3},
		Meta:     datatypes.JSON(meta),
	}
	data, err := json.Marshal(a)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "level", out["kind"])
	assert.NotContains(t, out, "payload")
	assert.Equal(t, map[string]any{"textures": float64(3), "faces": float64(120)}, out["meta"])
}

func TestDatabaseModels(t *testing.T) {
	require.Len(t, DatabaseModels, 1)
	assert.IsType(t, &CachedAsset{}, DatabaseModels[0])
}

func TestAssetKey_String(t *testing.T) {
	assert.Equal(t, "bsp/e1m1:2@13", AssetKey{Kind: "bsp", Name: "e1m1:2", Version: 13}.String())
}
