package mapper

import (
	"time"

	"youwin-client/internal/entity"
	"youwin-client/internal/model"
)

type CacheMapper struct{}

func NewCacheMapper() *CacheMapper {
	return &CacheMapper{}
}

func (m *CacheMapper) EntryToModel(e entity.CacheEntry) model.CachedItem {
	return model.CachedItem{
		Content:   e.Content,
		Timestamp: e.CreatedAt.UnixMilli(),
	}
}

func (m *CacheMapper) EntryToEntity(item model.CachedItem) entity.CacheEntry {
	return entity.CacheEntry{
		Content:   item.Content,
		CreatedAt: time.UnixMilli(item.Timestamp),
	}
}

func (m *CacheMapper) TableToModel(entries map[string]entity.CacheEntry) model.CachedTable {
	out := make(model.CachedTable, len(entries))
	for ref, e := range entries {
		out[ref] = m.EntryToModel(e)
	}
	return out
}

func (m *CacheMapper) TableToEntity(table model.CachedTable) map[string]entity.CacheEntry {
	out := make(map[string]entity.CacheEntry, len(table))
	for ref, item := range table {
		out[ref] = m.EntryToEntity(item)
	}
	return out
}
