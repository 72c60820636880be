package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	ts := time.Date(2026, 2, 15, 10, 30, 0, 123, time.UTC)

	c, err := Decode(Encode(ts, "vrd_abc123"))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, ts, c.At)
	assert.Equal(t, "vrd_abc123", c.ID)
}

func TestDecode_Empty(t *testing.T) {
	c, err := Decode("")
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestDecode_Invalid(t *testing.T) {
	for _, s := range []string{
		"not-base64!!!",
		"bm9waXBl",   // "nopipe"
		"MTIzfA",     // "123|"
		"YWJjfHZyZA", // "abc|vrd"
	} {
		_, err := Decode(s)
		assert.ErrorIs(t, err, ErrInvalidCursor, s)
	}
}

func TestCursorBefore(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Cursor{At: at, ID: "m"}

	assert.True(t, c.Before(at.Add(-time.Second), "z"))
	assert.False(t, c.Before(at.Add(time.Second), "a"))
	assert.True(t, c.Before(at, "a"))
	assert.False(t, c.Before(at, "m"))
	assert.False(t, c.Before(at, "z"))

	var none *Cursor
	assert.True(t, none.Before(at, "m"))
}

func TestComputePage(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	key := func(s string) (time.Time, string) { return at, s }

	page, next, more := ComputePage([]string{"a", "b", "c"}, 5, key)
	assert.Len(t, page, 3)
	assert.Empty(t, next)
	assert.False(t, more)

	page, next, more = ComputePage([]string{"a", "b", "c"}, 3, key)
	assert.Len(t, page, 3)
	assert.Empty(t, next)
	assert.False(t, more)

	page, next, more = ComputePage([]string{"a", "b", "c", "d"}, 3, key)
	assert.Equal(t, []string{"a", "b", "c"}, page)
	assert.True(t, more)

	c, err := Decode(next)
	require.NoError(t, err)
	assert.Equal(t, "c", c.ID)
}
