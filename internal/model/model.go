// Package model holds the gorm tables of the persistent asset cache.
package model

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// DatabaseModels lists every table AutoMigrate creates.
var DatabaseModels = []any{
	&CachedAsset{},
}

// Payload encodings.
const (
	EncodingZstd = "zstd"
	EncodingRaw  = "raw"
)

// CachedAsset is one encoded JSON response. Kind, Name and Version form
// the key; Version is the map data version the payload was produced with,
// so a format change never serves stale rows.
type CachedAsset struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Kind     string         `json:"kind" gorm:"size:16;uniqueIndex:idx_cached_asset_key"`
	Name     string         `json:"name" gorm:"size:255;uniqueIndex:idx_cached_asset_key"`
	Version  int            `json:"version" gorm:"uniqueIndex:idx_cached_asset_key"`
	Encoding string         `json:"encoding" gorm:"size:8;default:zstd"`
	Size     int            `json:"size"` // uncompressed bytes
	Payload  []byte         `json:"-"`
	Meta     datatypes.JSON `json:"meta"`
}

func (*CachedAsset) TableName() string {
	return "cached_assets"
}

// AssetMeta is stored in CachedAsset.Meta to make rows inspectable without
// decompressing them.
type AssetMeta struct {
	Textures int `json:"textures,omitempty"`
	Faces    int `json:"faces,omitempty"`
}

// AssetKey identifies a cached response.
type AssetKey struct {
	Kind    string
	Name    string
	Version int
}

func (k AssetKey) String() string {
	return fmt.Sprintf("%s/%s@%d", k.Kind, k.Name, k.Version)
}
