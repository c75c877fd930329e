package orders_api

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseISODateTime(t *testing.T) {
	ok := []string{
		"2024-05-01T10:00:00Z",
		"2024-05-01T10:00:00.123456Z",
		"2024-05-01T10:00:00+03:00",
		"2024-05-01T10:00:00",
		"2024-05-01 10:00:00",
		"2024-05-01 10:00",
		"2024-05-01T10:00",
		"2024-05-01 10:00:00.5",
		"2024-05-01T10:00:00+0300",
		"2024-5-1T9:05",
		"2024-05-01T10:00+05",
		"2024-05-01T10:00:00 Z",
		"2024-05-01T10:00:00,25-02:30",
		"2024-05-01T10:00:00.123456789Z",
		"2024-05-01",
	}
	for _, s := range ok {
		_, parsed := parseISODateTime(s)
		require.True(t, parsed, s)
	}

	bad := []string{
		"", "10:00", "yesterday", "2024/05/01 10:00",
		"2024-13-01T10:00:00", "2024-02-30T10:00", "2024-05-01T24:00", "2024-05-01T10:60",
		"2024-05-01T10:00+5", "2024-05-01T10:00+24:00", "2024-5-1", "2024-05-01T",
	}
	for _, s := range bad {
		_, parsed := parseISODateTime(s)
		require.False(t, parsed, s)
	}

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-05-01T10:00:00+03:00", time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)},
		{"2024-5-1T9:05", time.Date(2024, 5, 1, 9, 5, 0, 0, time.UTC)},
		{"2024-05-01T10:00+05", time.Date(2024, 5, 1, 5, 0, 0, 0, time.UTC)},
		{"2024-05-01T10:00:00,25-02:30", time.Date(2024, 5, 1, 12, 30, 0, 250_000_000, time.UTC)},
		{"2024-05-01T10:00:00.123456789Z", time.Date(2024, 5, 1, 10, 0, 0, 123_456_000, time.UTC)},
		{"2024-05-01", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, _ := parseISODateTime(tt.in)
		require.True(t, got.Equal(tt.want), "%s: got %s", tt.in, got)
	}
}

func TestMustRegisterValidation(t *testing.T) {
	v := validator.New()
	require.NotPanics(t, func() {
		mustRegisterValidation(v, "always", func(validator.FieldLevel) bool { return true })
	})
	require.Panics(t, func() {
		mustRegisterValidation(v, "", func(validator.FieldLevel) bool { return true })
	})
}

func TestParseQueryWeight(t *testing.T) {
	for _, s := range []string{"12.5", "12.500", " 1 ", "0.001", "999.999", "1e2"} {
		_, ok := parseQueryWeight(s)
		require.True(t, ok, s)
	}
	for _, s := range []string{"12.5001", "0", "-1", "1000", "NaN", "inf", "", "1,5"} {
		_, ok := parseQueryWeight(s)
		require.False(t, ok, s)
	}

	w, _ := parseQueryWeight("12.5")
	require.Equal(t, "12.500", w.StringFixed(3))
}

func TestDecimalShape(t *testing.T) {
	tests := []struct {
		in                   string
		total, places, whole int
	}{
		{"12.500", 5, 3, 2},
		{"12.5", 3, 1, 2},
		{"0.001", 3, 3, 0},
		{"100", 3, 0, 3},
		{"1e3", 4, 0, 4},
		{"-12.34", 4, 2, 2},
	}
	for _, tt := range tests {
		total, places, whole := decimalShape(decimal.RequireFromString(tt.in))
		require.Equal(t, []int{tt.total, tt.places, tt.whole}, []int{total, places, whole}, tt.in)
	}
}

func TestWeightField_Unmarshal(t *testing.T) {
	var w weightField
	require.NoError(t, w.UnmarshalJSON([]byte(`12.5`)))
	require.Equal(t, weightField("12.5"), w)
	require.NoError(t, w.UnmarshalJSON([]byte(`" 7.250 "`)))
	require.Equal(t, weightField("7.250"), w)
	require.NoError(t, w.UnmarshalJSON([]byte(`null`)))
	require.Equal(t, weightField(""), w)
	require.NoError(t, w.UnmarshalJSON([]byte(`true`)))
	require.Equal(t, weightField("true"), w)
}
