// Package monitorworker is the monitor worker's reactor shell: it
// registers folders the DB worker discovers for fsnotify watching and
// turns settled filesystem activity into ambient Gather requests
// (spec.md §4.5).
package monitorworker
