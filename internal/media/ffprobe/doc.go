// Package ffprobe wraps ffprobe JSON output for duration checks on narration
// tracks, rendered segments and assembled videos.
package ffprobe
