package model

// CachedItem is the persisted form of a cache entry. Timestamp is Unix milliseconds.
type CachedItem struct {
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// CachedTable is one persisted table: reference -> item.
type CachedTable map[string]CachedItem
