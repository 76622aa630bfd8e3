package catalogue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailest/mailestd/pkg/types"
)

func TestPutGetDelete(t *testing.T) {
	c := New()
	assert.Equal(t, 0, c.Len())

	c.Put(&types.Msg{Path: "/mail/inbox/1.mew", Size: 10})
	c.Put(&types.Msg{Path: "/mail/inbox/2.mew", Size: 20})
	require.Equal(t, 2, c.Len())

	m := c.Get("/mail/inbox/1.mew")
	require.NotNil(t, m)
	assert.EqualValues(t, 10, m.Size)

	assert.Nil(t, c.Get("/mail/inbox/missing.mew"))

	removed := c.Delete("/mail/inbox/1.mew")
	require.NotNil(t, removed)
	assert.Equal(t, 1, c.Len())
	assert.Nil(t, c.Get("/mail/inbox/1.mew"))
}

func TestPutReplacesExisting(t *testing.T) {
	c := New()
	c.Put(&types.Msg{Path: "/mail/inbox/1.mew", Size: 10})
	c.Put(&types.Msg{Path: "/mail/inbox/1.mew", Size: 99})

	require.Equal(t, 1, c.Len())
	assert.EqualValues(t, 99, c.Get("/mail/inbox/1.mew").Size)
}

func TestRangePrefix(t *testing.T) {
	c := New()
	paths := []string{
		"/mail/inbox/1.mew",
		"/mail/inbox/2.mew",
		"/mail/inbox/sub/3.mew",
		"/mail/sent/4.mew",
		"/mail/inboxx/5.mew",
	}
	for _, p := range paths {
		c.Put(&types.Msg{Path: p})
	}

	var got []string
	c.RangePrefix("/mail/inbox/", func(m *types.Msg) bool {
		got = append(got, m.Path)
		return true
	})

	assert.Equal(t, []string{
		"/mail/inbox/1.mew",
		"/mail/inbox/2.mew",
		"/mail/inbox/sub/3.mew",
	}, got)
}

func TestRangePrefixStopsEarly(t *testing.T) {
	c := New()
	c.Put(&types.Msg{Path: "/mail/inbox/1.mew"})
	c.Put(&types.Msg{Path: "/mail/inbox/2.mew"})
	c.Put(&types.Msg{Path: "/mail/inbox/3.mew"})

	count := 0
	c.RangePrefix("/mail/inbox", func(m *types.Msg) bool {
		count++
		return count < 2
	})

	assert.Equal(t, 2, count)
}

func TestAllOrdering(t *testing.T) {
	c := New()
	c.Put(&types.Msg{Path: "/mail/b"})
	c.Put(&types.Msg{Path: "/mail/a"})
	c.Put(&types.Msg{Path: "/mail/c"})

	var got []string
	c.All(func(m *types.Msg) bool {
		got = append(got, m.Path)
		return true
	})

	assert.Equal(t, []string{"/mail/a", "/mail/b", "/mail/c"}, got)
}
