// Package notifications delivers operator alerts about transcription
// outcomes. Pushover is the only backend; unconfigured installs get a
// noop service.
package notifications
