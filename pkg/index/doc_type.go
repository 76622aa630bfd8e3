package index

// Doc is one document in the external index: a message's attributes
// (uri, mdate, message-id, x-mew-parid, subject, and whatever else the
// parser attached) plus its trimmed body text.
type Doc struct {
	ID    uint64            `json:"id"`
	Attrs map[string]string `json:"attrs"`
	Text  string            `json:"text"`
}

// Attr returns the named attribute, or "" if unset.
func (d *Doc) Attr(name string) string {
	if d.Attrs == nil {
		return ""
	}
	return d.Attrs[name]
}

// SetAttr sets an attribute, allocating the map if necessary.
func (d *Doc) SetAttr(name, value string) {
	if d.Attrs == nil {
		d.Attrs = make(map[string]string)
	}
	d.Attrs[name] = value
}
