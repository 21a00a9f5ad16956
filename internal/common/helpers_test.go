package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateOf_UTCBoundary(t *testing.T) {
	before := time.Date(2024, 3, 10, 23, 59, 59, 0, time.UTC)
	after := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), DateOf(before))
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), DateOf(after))
	assert.False(t, IsSameDay(before, after))
	assert.True(t, IsYesterday(before, after))
}

func TestDateOf_ConvertsOffsetToUTC(t *testing.T) {
	msk := time.FixedZone("MSK", 3*60*60)
	local := time.Date(2024, 3, 11, 2, 30, 0, 0, msk)

	assert.Equal(t, "2024-03-10", FormatDate(local))
}

func TestIsYesterday(t *testing.T) {
	today := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, IsYesterday(time.Date(2024, 2, 29, 8, 0, 0, 0, time.UTC), today))
	assert.False(t, IsYesterday(time.Date(2024, 2, 28, 8, 0, 0, 0, time.UTC), today))
	assert.False(t, IsYesterday(today, today))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, d.Location())
	assert.Equal(t, 31, d.Day())

	_, err = ParseDate("31.01.2024")
	require.Error(t, err)
}

func TestPluralizeDays(t *testing.T) {
	cases := map[int]string{
		0: "дней", 1: "день", 2: "дня", 4: "дня", 5: "дней",
		11: "дней", 12: "дней", 21: "день", 22: "дня", 111: "дней",
	}
	for n, want := range cases {
		assert.Equal(t, want, PluralizeDays(n), "n=%d", n)
	}
}

func TestFormatTokens(t *testing.T) {
	assert.Equal(t, "20 POKE", FormatTokens(20_000_000_000, 9, "POKE"))
	assert.Equal(t, "1.5 POKE", FormatTokens(1_500_000_000, 9, "POKE"))
	assert.Equal(t, "12 345 POKE", FormatTokens(12_345_000_000_000, 9, "POKE"))
	assert.Equal(t, "0 POKE", FormatTokens(0, 9, "POKE"))
	assert.Equal(t, "+100 POKE", FormatTokensDelta(100_000_000_000, 9, "POKE"))
}

func TestParseTokens(t *testing.T) {
	v, err := ParseTokens("12.5", 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(12_500_000_000), v)

	_, err = ParseTokens("-1", 9)
	require.Error(t, err)

	_, err = ParseTokens("0.0000000001", 9)
	require.Error(t, err)

	_, err = ParseTokens("abc", 9)
	require.Error(t, err)
}
