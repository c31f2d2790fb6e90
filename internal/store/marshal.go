package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// marshalPageIDs converts the journal's page id list to JSON TEXT.
// A nil list is stored as "[]".
func marshalPageIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("marshal page ids: %w", err)
	}
	return string(data), nil
}

func unmarshalPageIDs(data string) ([]string, error) {
	ids := []string{}
	if data == "" {
		return ids, nil
	}
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal page ids: %w", err)
	}
	return ids, nil
}
