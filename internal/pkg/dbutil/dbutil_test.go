package dbutil

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestFinalizeRebindsPlaceholders(t *testing.T) {
	query, args := Finalize("SELECT a FROM t WHERE x = ? AND y = ? LIMIT ?, ?", []interface{}{1, 2, 0, 10})
	require.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2 LIMIT $3 OFFSET $4", query)
	require.Equal(t, []interface{}{1, 2, 10, 0}, args)
}

func TestIsConflict(t *testing.T) {
	require.True(t, IsConflict(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	require.False(t, IsConflict(&pq.Error{Code: "23503"}))
	require.False(t, IsConflict(errors.New("boom")))
}

func TestIsUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "bad conn", err: fmt.Errorf("query: %w", driver.ErrBadConn), want: true},
		{name: "connection exception", err: &pq.Error{Code: "08006"}, want: true},
		{name: "admin shutdown", err: &pq.Error{Code: "57P01"}, want: true},
		{name: "unique violation", err: &pq.Error{Code: "23505"}, want: false},
		{name: "plain", err: errors.New("syntax"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsUnavailable(tt.err))
		})
	}
}
