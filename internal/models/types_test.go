package models

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringArray_ScanFormats(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  StringArray
	}{
		{"nil", nil, StringArray{}},
		{"json", `["instagram","facebook"]`, StringArray{"instagram", "facebook"}},
		{"json bytes", []byte(`["tiktok"]`), StringArray{"tiktok"}},
		{"postgres literal", `{"instagram", facebook}`, StringArray{"instagram", "facebook"}},
		{"empty literal", "{}", StringArray{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got StringArray
			require.NoError(t, got.Scan(tt.value))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStringArray_ScanRejectsUnknownType(t *testing.T) {
	var got StringArray
	assert.Error(t, got.Scan(42))
}

func TestIntArray_ValueAndContains(t *testing.T) {
	days := IntArray{1, 3}
	v, err := days.Value()
	require.NoError(t, err)
	assert.Equal(t, "[1,3]", v)

	var back IntArray
	require.NoError(t, back.Scan(v))
	assert.True(t, back.Contains(3))
	assert.False(t, back.Contains(2))
}

func TestDate_Scan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, NewDate(2024, time.January, 15), d)

	require.NoError(t, d.Scan("2024-02-29T00:00:00Z"))
	assert.Equal(t, NewDate(2024, time.February, 29), d)

	assert.Error(t, d.Scan("not a date"))

	v, err := Date{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestDateList_RoundTripAndContains(t *testing.T) {
	list := DateList{{Year: 2024, Month: 1, Day: 15}}
	v, err := list.Value()
	require.NoError(t, err)
	assert.Equal(t, `["2024-01-15"]`, v)

	var back DateList
	require.NoError(t, back.Scan(v))
	assert.True(t, back.Contains(civil.Date{Year: 2024, Month: 1, Day: 15}))
	assert.False(t, back.Contains(civil.Date{Year: 2024, Month: 1, Day: 22}))
}
