package control

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailest/mailestd/pkg/types"
)

func TestSearchFrameEncodeDecodeRoundTrip(t *testing.T) {
	cond := types.SearchCond{
		Max:     10,
		Attrs:   []string{"@uri=file:///mail/inbox/1.mew", "message-id=<a@b>"},
		Order:   "Dmdate",
		Phrase:  "hello world",
		OutForm: types.OutFormLines,
	}
	f, err := NewSearchFrame(cond)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.Encode(&buf))
	assert.Equal(t, FrameSize, buf.Len())

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, CmdSearch, got.Command)

	gotCond := got.SearchCond()
	assert.Equal(t, cond.Max, gotCond.Max)
	assert.Equal(t, cond.Attrs, gotCond.Attrs)
	assert.Equal(t, cond.Order, gotCond.Order)
	assert.Equal(t, cond.Phrase, gotCond.Phrase)
}

func TestUpdateFrameRoundTrip(t *testing.T) {
	f, err := NewUpdateFrame("/mail/inbox")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.Encode(&buf))

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, CmdUpdate, got.Command)
	assert.Equal(t, "/mail/inbox", got.FolderStr())
}

func TestSmewFrameRoundTrip(t *testing.T) {
	f, err := NewSmewFrame("<child@example.com>", "/mail/inbox")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.Encode(&buf))

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, CmdSmew, got.Command)
	assert.Equal(t, "<child@example.com>", got.SmewMsgIDStr())
	assert.Equal(t, "/mail/inbox", got.FolderStr())
}

func TestNewUpdateFrameRejectsOverlongFolder(t *testing.T) {
	_, err := NewUpdateFrame(strings.Repeat("a", pathMax))
	assert.Error(t, err)
}

func TestNewSearchFrameRejectsTooManyAttrs(t *testing.T) {
	attrs := make([]string, maxAttrs+1)
	_, err := NewSearchFrame(types.SearchCond{Attrs: attrs})
	assert.Error(t, err)
}

func TestSimpleFrameRoundTrip(t *testing.T) {
	f := NewSimpleFrame(CmdStop)
	var buf bytes.Buffer
	require.NoError(t, f.Encode(&buf))

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, CmdStop, got.Command)
}
