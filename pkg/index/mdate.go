package index

import "time"

// MDateLayout is the persisted format of the "@mdate" attribute every
// draft synthesizes: an RFC 822 timestamp in GMT (spec.md §6,
// `"%a, %d %b %Y %H:%M:%S +0000"`). The index only ever writes it with
// a zero UTC offset, so the offset is a literal rather than a layout
// verb.
const MDateLayout = "Mon, 02 Jan 2006 15:04:05 +0000"

// FormatMDate renders t (converted to UTC) in the persisted @mdate format.
func FormatMDate(t time.Time) string {
	return t.UTC().Format(MDateLayout)
}

// ParseMDate parses a stored @mdate value back into a time.Time.
func ParseMDate(s string) (time.Time, error) {
	return time.Parse(MDateLayout, s)
}
