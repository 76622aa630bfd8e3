package smew

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractParentIDSingleInReplyToWins(t *testing.T) {
	got := ExtractParentID("<a@x>", "<z@x> <y@x>")
	assert.Equal(t, "<a@x>", got)
}

func TestExtractParentIDFallsBackToLastReference(t *testing.T) {
	got := ExtractParentID("", "<grand@x> <root@x>")
	assert.Equal(t, "<root@x>", got)
}

func TestExtractParentIDTwoInReplyToUsesFirst(t *testing.T) {
	got := ExtractParentID("<a@x> <b@x>", "")
	assert.Equal(t, "<a@x>", got)
}

func TestExtractParentIDNoneFound(t *testing.T) {
	got := ExtractParentID("", "")
	assert.Equal(t, "", got)
}

func TestExtractParentIDInvalidTokensIgnored(t *testing.T) {
	got := ExtractParentID("not-a-msgid", "<root@x>")
	assert.Equal(t, "<root@x>", got)
}

func TestExtractParentIDRejectsNonASCII(t *testing.T) {
	got := ExtractParentID("<héllo@x>", "<root@x>")
	assert.Equal(t, "<root@x>", got)
}
