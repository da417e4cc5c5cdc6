package resolution

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sept28 = int64(1222624800) // 2008-09-28 18:00:00 UTC

func TestRenderNaive(t *testing.T) {
	got := Render(sept28, nil, MustParse("H"))
	assert.Equal(t, KindNaive, got.Kind)
	assert.True(t, got.Time.Equal(time.Date(2008, 9, 28, 18, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2008-09-28T18:00:00", got.String())
}

func TestRenderUTC(t *testing.T) {
	got := Render(sept28, time.UTC, MustParse("H"))
	assert.Equal(t, KindAware, got.Kind)
	assert.Equal(t, 18, got.Time.Hour())
	assert.Equal(t, "2008-09-28T18:00:00Z", got.String())
}

func TestRenderTimezone(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)

	got := Render(sept28, london, MustParse("H"))
	assert.Equal(t, KindAware, got.Kind)
	assert.Equal(t, 19, got.Time.Hour())
	assert.Equal(t, "2008-09-28T19:00:00+01:00", got.String())

	want := Moment{Time: time.Date(2008, 9, 28, 19, 0, 0, 0, london), Kind: KindAware}
	assert.True(t, want.Equal(got))
}

func TestRenderDateIgnoresTimezone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	for _, code := range []string{"D", "W", "M", "Y"} {
		r := MustParse(code)
		plain := Render(sept28, nil, r)
		zoned := Render(sept28, tokyo, r)
		assert.Equal(t, KindDate, plain.Kind)
		assert.True(t, plain.Equal(zoned), code)
		assert.True(t, Date(2008, time.September, 28).Equal(plain))
		assert.Equal(t, "2008-09-28", zoned.String())
	}
}

func TestMomentJSON(t *testing.T) {
	b, err := json.Marshal(Render(946684800, nil, MustParse("D")))
	require.NoError(t, err)
	assert.JSONEq(t, `"2000-01-01"`, string(b))
}
