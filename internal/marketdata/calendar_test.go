package marketdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestIsWeekend(t *testing.T) {
	assert.True(t, IsWeekend(date("2024-04-06")))  // Saturday
	assert.True(t, IsWeekend(date("2024-04-07")))  // Sunday
	assert.False(t, IsWeekend(date("2024-04-08"))) // Monday
}

func TestIsBusinessDay(t *testing.T) {
	tests := []struct {
		day  string
		want bool
	}{
		{"2024-01-01", false}, // New Year's Day
		{"2024-01-15", false}, // MLK Day
		{"2024-02-19", false}, // Presidents' Day
		{"2024-03-29", false}, // Good Friday
		{"2024-05-27", false}, // Memorial Day
		{"2024-06-19", false}, // Juneteenth
		{"2024-07-04", false}, // Independence Day
		{"2024-09-02", false}, // Labor Day
		{"2024-11-28", false}, // Thanksgiving
		{"2024-12-25", false}, // Christmas
		{"2024-04-08", true},
		{"2024-11-29", true}, // day after Thanksgiving, half session but open
		{"2021-06-19", false},
		{"2020-06-19", true}, // Juneteenth not observed before 2022
	}
	for _, tt := range tests {
		got := IsBusinessDay(date(tt.day))
		if tt.day == "2021-06-19" {
			// 2021-06-19 is a Saturday regardless of the holiday rule.
			assert.False(t, got, tt.day)
			continue
		}
		assert.Equal(t, tt.want, got, tt.day)
	}
}

func TestGoodFriday(t *testing.T) {
	assert.Equal(t, date("2024-03-29"), goodFriday(2024))
	assert.Equal(t, date("2023-04-07"), goodFriday(2023))
	assert.Equal(t, date("2025-04-18"), goodFriday(2025))
}
