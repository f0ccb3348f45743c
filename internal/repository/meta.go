package repository

import (
	"context"
	"encoding/json"

	"github.com/nimasrn/donation-ledger/internal/model"
	"github.com/nimasrn/donation-ledger/pkg/pg"
)

// MetaEntity is the row shape shared by donor_meta, campaign_meta,
// transaction_meta and subscription_meta. A key may repeat per owner.
type MetaEntity struct {
	ID        int64  `gorm:"primaryKey;autoIncrement;column:id"`
	OwnerID   int64  `gorm:"column:owner_id;not null;index"`
	MetaKey   string `gorm:"column:meta_key;size:255;not null"`
	MetaValue string `gorm:"column:meta_value;type:text"`
}

// MetaStore stores JSON encoded key/value rows for one entity's meta table.
type MetaStore struct {
	db        *pg.DB
	tableName string
}

func NewMetaStore(db *pg.DB, table string) *MetaStore {
	return &MetaStore{db: db, tableName: table}
}

func (m *MetaStore) MetaTable() string { return m.tableName }

func (m *MetaStore) AddMeta(ctx context.Context, ownerID int64, key string, value any) (int64, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return 0, model.NewValidationError(model.CodeInvalidRequest, "meta value for "+key+" is not encodable", err)
	}
	row := &MetaEntity{OwnerID: ownerID, MetaKey: key, MetaValue: string(raw)}
	if err := m.db.Write(ctx).Table(m.tableName).Create(row).Error; err != nil {
		return 0, model.NewPersistenceError("add meta "+key, err)
	}
	return row.ID, nil
}

// GetMeta returns the first value stored under key, or nil when there is none.
func (m *MetaStore) GetMeta(ctx context.Context, ownerID int64, key string) (json.RawMessage, error) {
	var rows []MetaEntity
	err := m.db.Read(ctx).Table(m.tableName).
		Where("owner_id = ? AND meta_key = ?", ownerID, key).
		Order("id ASC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, model.NewPersistenceError("get meta "+key, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return json.RawMessage(rows[0].MetaValue), nil
}

func (m *MetaStore) GetMetaMulti(ctx context.Context, ownerID int64, key string) ([]json.RawMessage, error) {
	var rows []MetaEntity
	err := m.db.Read(ctx).Table(m.tableName).
		Where("owner_id = ? AND meta_key = ?", ownerID, key).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, model.NewPersistenceError("get meta "+key, err)
	}
	out := make([]json.RawMessage, len(rows))
	for i, r := range rows {
		out[i] = json.RawMessage(r.MetaValue)
	}
	return out, nil
}

// AllMeta groups every row of an owner by key, in insertion order.
func (m *MetaStore) AllMeta(ctx context.Context, ownerID int64) (map[string][]json.RawMessage, error) {
	var rows []MetaEntity
	err := m.db.Read(ctx).Table(m.tableName).
		Where("owner_id = ?", ownerID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, model.NewPersistenceError("list meta", err)
	}
	out := make(map[string][]json.RawMessage)
	for _, r := range rows {
		out[r.MetaKey] = append(out[r.MetaKey], json.RawMessage(r.MetaValue))
	}
	return out, nil
}

// UpdateMeta overwrites every row under key, inserting one when none exist.
func (m *MetaStore) UpdateMeta(ctx context.Context, ownerID int64, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return model.NewValidationError(model.CodeInvalidRequest, "meta value for "+key+" is not encodable", err)
	}
	return m.db.WithinTransaction(ctx, func(ctx context.Context) error {
		res := m.db.Write(ctx).Table(m.tableName).
			Where("owner_id = ? AND meta_key = ?", ownerID, key).
			Update("meta_value", string(raw))
		if res.Error != nil {
			return model.NewPersistenceError("update meta "+key, res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}
		row := &MetaEntity{OwnerID: ownerID, MetaKey: key, MetaValue: string(raw)}
		if err := m.db.Write(ctx).Table(m.tableName).Create(row).Error; err != nil {
			return model.NewPersistenceError("update meta "+key, err)
		}
		return nil
	})
}

func (m *MetaStore) DeleteMeta(ctx context.Context, ownerID int64, key string) error {
	err := m.db.Write(ctx).Table(m.tableName).
		Where("owner_id = ? AND meta_key = ?", ownerID, key).
		Delete(&MetaEntity{}).Error
	if err != nil {
		return model.NewPersistenceError("delete meta "+key, err)
	}
	return nil
}

func (m *MetaStore) DeleteAllMeta(ctx context.Context, ownerID int64) error {
	err := m.db.Write(ctx).Table(m.tableName).
		Where("owner_id = ?", ownerID).
		Delete(&MetaEntity{}).Error
	if err != nil {
		return model.NewPersistenceError("delete meta", err)
	}
	return nil
}

// DecodeMeta unmarshals raw into a T. A nil raw yields the zero value and
// false.
func DecodeMeta[T any](raw json.RawMessage) (T, bool, error) {
	var v T
	if raw == nil {
		return v, false, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, err
	}
	return v, true, nil
}
