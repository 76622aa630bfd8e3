package smew

import (
	"regexp"
	"strings"
)

// msgIDPattern matches a single valid msg-id token: "<" followed by one
// or more characters from RFC 2822's atext-plus-"." set, followed by
// ">". The character class is itself restricted to code points below
// 128, so no separate ASCII check is needed.
var msgIDPattern = regexp.MustCompile(`^<[-A-Za-z0-9!#$%&'*+/=?^_` + "`" + `{|}~.@]+>$`)

func validMsgIDs(raw string) []string {
	var valid []string
	for _, tok := range strings.Fields(raw) {
		if msgIDPattern.MatchString(tok) {
			valid = append(valid, tok)
		}
	}
	return valid
}

// ExtractParentID computes x-mew-parid from a message's raw In-Reply-To
// and References header values, per the fixed precedence in spec.md
// §4.6: a single valid In-Reply-To wins; otherwise the last valid
// References entry; otherwise the first of two-or-more valid
// In-Reply-To entries; otherwise there is no parent.
func ExtractParentID(inReplyTo, references string) string {
	irt := validMsgIDs(inReplyTo)
	refs := validMsgIDs(references)

	switch {
	case len(irt) == 1:
		return irt[0]
	case len(refs) >= 1:
		return refs[len(refs)-1]
	case len(irt) >= 2:
		return irt[0]
	default:
		return ""
	}
}
