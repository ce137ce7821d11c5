package calendar

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSafeDate_StableAcrossOffsets(t *testing.T) {
	zones := []*time.Location{
		time.FixedZone("UTC-12", -12*3600),
		time.FixedZone("UTC-3", -3*3600),
		time.UTC,
		time.FixedZone("UTC+14", 14*3600),
	}
	inputs := []string{"2024-01-01", "2024-02-29", "2023-12-31", "1999-07-15"}

	for _, loc := range zones {
		for _, in := range inputs {
			d := ParseSafeDate(in)
			got := d.In(loc)
			assert.Equal(t, in, got.Format("2006-01-02"), "zone %s", loc)
			assert.Equal(t, loc, got.Location())
		}
	}
}

func TestParseSafeDate_LeapDay(t *testing.T) {
	d := ParseSafeDate("2024-02-29")
	assert.Equal(t, Date{Year: 2024, Month: time.February, Day: 29}, d)
}

func TestParseSafeDate_DiscardsTimeSuffix(t *testing.T) {
	assert.Equal(t, New(2024, time.March, 10), ParseSafeDate("2024-03-10T23:59:59-03:00"))
	assert.Equal(t, New(2024, time.March, 10), ParseSafeDate("2024-03-10 00:00:00"))
}

func TestParseSafeDate_Fallbacks(t *testing.T) {
	assert.Equal(t, New(2024, time.March, 10), ParseSafeDate("10/03/2024"))
	assert.Equal(t, New(2024, time.March, 10), ParseSafeDate("2024/03/10"))
	assert.True(t, ParseSafeDate("").IsZero())
	assert.True(t, ParseSafeDate("not a date").IsZero())
	assert.True(t, ParseSafeDate("2024-13-01").IsZero())
}

func TestDate_Arithmetic(t *testing.T) {
	d := New(2024, time.January, 31)
	assert.Equal(t, New(2024, time.February, 1), d.AddDays(1))
	assert.Equal(t, New(2024, time.February, 1), d.AddMonths(1))
	assert.Equal(t, New(2023, time.November, 1), d.AddMonths(-2))
	assert.Equal(t, New(2024, time.January, 1), d.MonthStart())
	assert.Equal(t, 29, New(2024, time.February, 1).DaysUntil(New(2024, time.March, 1)))
	assert.Equal(t, -1, d.DaysUntil(New(2024, time.January, 30)))
	assert.Equal(t, "2024-01", d.MonthKey())
}

func TestDate_Compare(t *testing.T) {
	a := New(2024, time.May, 1)
	b := New(2024, time.May, 2)
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.Equal(t, 0, a.Compare(New(2024, time.May, 1)))
	assert.True(t, New(2023, time.December, 31).Before(a))
}

func TestDate_JSON(t *testing.T) {
	type payload struct {
		When Date  `json:"when"`
		Due  *Date `json:"due,omitempty"`
	}
	out, err := json.Marshal(payload{When: New(2024, time.February, 29)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"when":"2024-02-29"}`, string(out))

	var p payload
	require.NoError(t, json.Unmarshal([]byte(`{"when":"2024-02-29T10:00:00Z","due":"2024-03-01"}`), &p))
	assert.Equal(t, New(2024, time.February, 29), p.When)
	require.NotNil(t, p.Due)
	assert.Equal(t, New(2024, time.March, 1), *p.Due)

	require.Error(t, json.Unmarshal([]byte(`{"when":20240229}`), &p))
}

func TestPtr(t *testing.T) {
	assert.Nil(t, Ptr(nil))
	ts := time.Date(2024, time.June, 5, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, New(2024, time.June, 5), *Ptr(&ts))
}
