package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/mailest/mailestd/pkg/types"
)

func init() {
	message.CharsetReader = charset.Reader
}

// Parse reads one RFC 822 message from r and returns a Draft carrying
// the attributes gather/smew/search need from the message itself
// (message-id, in-reply-to, references, subject, from) and the
// trimmed text/plain body. Attachment bodies are never indexed; only
// a filename is recorded, under "x-attachment": with several
// attachments, the last one's filename replaces the earlier ones.
//
// Catalogue-derived attributes — "@uri", "@mdate" (the file's mtime,
// not any header date), "@size", and "x-mew-parid" — are not this
// package's concern: the draft pipeline (pkg/mainworker) attaches them
// after Parse returns, since they come from the Msg record and the
// thread graph rather than the message bytes.
func Parse(r io.Reader, trimSize int) (*types.Draft, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	defer mr.Close()

	draft := types.NewDraft()
	readHeader(&mr.Header, draft)

	if err := readBody(mr, draft); err != nil {
		return nil, err
	}

	draft.Slim(trimSize)
	return draft, nil
}

func readHeader(h *mail.Header, draft *types.Draft) {
	if id, err := h.MessageID(); err == nil && id != "" {
		draft.AddAttr("message-id", wrapID(id))
	}
	if refs, err := h.InReplyTo(); err == nil && len(refs) > 0 {
		wrapped := make([]string, len(refs))
		for i, ref := range refs {
			wrapped[i] = wrapID(ref)
		}
		draft.AddAttr("in-reply-to", strings.Join(wrapped, " "))
	}
	if refs, err := h.References(); err == nil && len(refs) > 0 {
		wrapped := make([]string, len(refs))
		for i, ref := range refs {
			wrapped[i] = wrapID(ref)
		}
		draft.AddAttr("references", strings.Join(wrapped, " "))
	}
	if subject, err := h.Subject(); err == nil && subject != "" {
		draft.AddAttr("subject", subject)
	}
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		draft.AddAttr("from", from[0].Address)
	}
}

func readBody(mr *mail.Reader, draft *types.Draft) error {
	var body strings.Builder
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read message part: %w", err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			if body.Len() > 0 {
				continue // only the first text/plain part is indexed
			}
			if ct, _, _ := h.ContentType(); ct != "" && !strings.HasPrefix(ct, "text/plain") {
				continue
			}
			if _, err := io.Copy(&body, part.Body); err != nil {
				return fmt.Errorf("read message body: %w", err)
			}
		case *mail.AttachmentHeader:
			if filename, err := h.Filename(); err == nil && filename != "" {
				draft.AddAttr("x-attachment", filename)
			}
		}
	}
	draft.SetText(body.String())
	return nil
}

func wrapID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.HasPrefix(id, "<") {
		return id
	}
	return "<" + id + ">"
}
