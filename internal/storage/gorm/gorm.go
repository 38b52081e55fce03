// Package gormstorage implements the storage.Backend interface on a gorm
// database (sqlite or postgres) with zstd compressed payloads.
package gormstorage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quakeview/server/internal/config"
	"github.com/quakeview/server/internal/database"
	"github.com/quakeview/server/internal/model"
)

// Backend stores model.CachedAsset rows.
type Backend struct {
	db  *database.Manager
	cfg config.StorageConfig
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// New creates a backend that connects through db on Init.
func New(db *database.Manager, cfg config.StorageConfig) *Backend {
	return &Backend{db: db, cfg: cfg}
}

// Init connects, migrates and prepares the codecs.
func (b *Backend) Init() error {
	if err := b.db.Connect(b.cfg); err != nil {
		return err
	}
	var err error
	if b.enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)); err != nil {
		return fmt.Errorf("zstd encoder: %w", err)
	}
	if b.dec, err = zstd.NewReader(nil); err != nil {
		return fmt.Errorf("zstd decoder: %w", err)
	}
	return nil
}

// Close releases the codecs and the connection.
func (b *Backend) Close() error {
	if b.enc != nil {
		b.enc.Close()
	}
	if b.dec != nil {
		b.dec.Close()
	}
	return b.db.Close()
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB { return b.db.DB }

func (b *Backend) Get(key model.AssetKey) ([]byte, bool, error) {
	var row model.CachedAsset
	err := b.db.DB.
		Where("kind = ? AND name = ? AND version = ?", key.Kind, key.Name, key.Version).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}

	switch row.Encoding {
	case model.EncodingZstd:
		out, err := b.dec.DecodeAll(row.Payload, make([]byte, 0, row.Size))
		if err != nil {
			return nil, false, fmt.Errorf("decompress %s: %w", key, err)
		}
		return out, true, nil
	case model.EncodingRaw:
		return row.Payload, true, nil
	}
	return nil, false, fmt.Errorf("%s has unknown encoding %q", key, row.Encoding)
}

func (b *Backend) Put(key model.AssetKey, payload []byte, meta model.AssetMeta) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	row := model.CachedAsset{
		Kind:     key.Kind,
		Name:     key.Name,
		Version:  key.Version,
		Encoding: model.EncodingZstd,
		Size:     len(payload),
		Payload:  b.enc.EncodeAll(payload, nil),
		Meta:     datatypes.JSON(metaJSON),
	}
	err = b.db.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "name"}, {Name: "version"}},
		DoUpdates: clause.AssignmentColumns([]string{"updated_at", "encoding", "size", "payload", "meta"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Prune deletes rows written for other map data versions.
func (b *Backend) Prune(keep int) (int64, error) {
	res := b.db.DB.Where("version <> ?", keep).Delete(&model.CachedAsset{})
	return res.RowsAffected, res.Error
}
