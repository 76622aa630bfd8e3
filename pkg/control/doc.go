// Package control implements the local control socket protocol
// mailestctl speaks to mailestd: a fixed-size binary command frame
// per connection read, dispatched to a Dispatcher, with replies
// written back as newline-delimited text (spec.md §4.8, §6).
package control
