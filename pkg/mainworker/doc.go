// Package mainworker implements the draft pipeline: parsing a
// message file into a Draft, synthesizing the catalogue-derived
// attributes the parser itself never sees, and handing the result to
// the DB worker as a Rfc822PutDb task (spec.md §4.4).
package mainworker
