// Package parser turns an RFC 822 message file into a types.Draft: the
// attribute set and trimmed body text that pkg/index stores. It is a
// thin adapter around github.com/emersion/go-message/mail, which
// already handles MIME multipart walking and the charset decoding
// non-ASCII mail requires.
package parser
