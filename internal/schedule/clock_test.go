package schedule

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{"09:00", 9 * 60, false},
		{"18:30", 18*60 + 30, false},
		{"09:00:00", 9 * 60, false},
		{" 07:05 ", 7*60 + 5, false},
		{"00:00", 0, false},
		{"23:59", 23*60 + 59, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"9", 0, true},
		{"ab:cd", 0, true},
		{"", 0, true},
		{"10:00:00:00", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClock_Format(t *testing.T) {
	assert.Equal(t, "09:05", Clock(9*60+5).String())
	assert.Equal(t, "17:30", Clock(17*60).Add(30).String())

	data, err := json.Marshal(struct {
		T Clock `json:"t"`
	}{T: Clock(8*60 + 15)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":"08:15"}`, string(data))

	var decoded struct {
		T Clock `json:"t"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"t":"14:45"}`), &decoded))
	assert.Equal(t, Clock(14*60+45), decoded.T)
	assert.Error(t, json.Unmarshal([]byte(`{"t":"later"}`), &decoded))
}

func TestClock_On(t *testing.T) {
	loc := time.FixedZone("CST", -6*3600)
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)

	got := Clock(9*60 + 30).On(date)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 30, 0, 0, loc), got)
	assert.Equal(t, Clock(9*60+30), ClockOf(got))
}

func TestParseDate(t *testing.T) {
	loc := time.FixedZone("CST", -6*3600)

	d, err := ParseDate("2026-03-02", loc)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", DateKey(d))
	assert.Equal(t, loc, d.Location())

	_, err = ParseDate("02/03/2026", loc)
	assert.Error(t, err)

	start, end := DayBounds(time.Date(2026, 3, 2, 15, 4, 5, 0, loc))
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, loc), start)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, loc), end)
}
