package database

import (
	"database/sql"
	"time"
)

// TimePtr converts a nullable timestamp into a pointer, normalized to UTC.
func TimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// IntPtr converts a nullable integer into a pointer.
func IntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// NullableInt maps nil and non-positive ids to SQL NULL.
func NullableInt(v *int) any {
	if v == nil || *v <= 0 {
		return nil
	}
	return *v
}

// NullableTime maps nil to SQL NULL.
func NullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
