// Package render drives the hosted text-to-video model that produces one clip
// per scene prompt.
package render
