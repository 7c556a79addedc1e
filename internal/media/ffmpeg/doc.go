// Package ffmpeg assembles rendered segments into the final video: concat,
// last-frame hold and the narration/music mix.
package ffmpeg
