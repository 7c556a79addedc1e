// Package objectstore keeps production artifacts (narration, segments,
// assembled and final videos) on the local filesystem or in an S3-compatible
// bucket. Keys are slash-separated, e.g. productions/<job-id>/final.mp4.
package objectstore
