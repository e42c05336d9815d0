// Package ffprobe shells out to ffprobe and exposes the stream facts the
// pipeline cares about: container duration, audio track inventory, and
// embedded subtitle streams.
package ffprobe
