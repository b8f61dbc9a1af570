package id

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	a, b := New(), New()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}

func TestEntryID(t *testing.T) {
	tests := []struct {
		date time.Time
		seq  int
		want string
	}{
		{time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), 1, "2025-01-001"},
		{time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), 99, "2025-12-099"},
		{time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 1234, "2025-01-1234"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EntryID(tt.date, tt.seq))
	}
}

func TestLineID(t *testing.T) {
	tests := []struct {
		pos  int
		want string
	}{
		{0, "2025-01-001a"},
		{1, "2025-01-001b"},
		{25, "2025-01-001z"},
		{26, "2025-01-001aa"},
		{27, "2025-01-001ab"},
	}
	for _, tt := range tests {
		got := LineID("2025-01-001", tt.pos)
		assert.Equal(t, tt.want, got, "pos %d", tt.pos)
		assert.Equal(t, "2025-01-001", EntryGroup(got))
	}
}

func TestParseEntryID(t *testing.T) {
	tests := []struct {
		input               string
		wantYear, wantMonth int
		wantSeq             int
	}{
		{"2025-01-001", 2025, 1, 1},
		{"2025-12-099", 2025, 12, 99},
		{"2025-01-001a", 2025, 1, 1},
		{"2025-01-001ab", 2025, 1, 1},
	}
	for _, tt := range tests {
		year, month, seq, err := ParseEntryID(tt.input)
		require.NoError(t, err, "input: %s", tt.input)
		assert.Equal(t, tt.wantYear, year)
		assert.Equal(t, tt.wantMonth, month)
		assert.Equal(t, tt.wantSeq, seq)
	}
}

func TestParseEntryID_Errors(t *testing.T) {
	for _, input := range []string{"", "not-valid", "2025-01", "xxxx-01-001", "2025-13-001"} {
		_, _, _, err := ParseEntryID(input)
		assert.Error(t, err, "expected error for input: %s", input)
	}
}

func TestPeriod(t *testing.T) {
	assert.Equal(t, "2024-02", Period(time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC)))
}
