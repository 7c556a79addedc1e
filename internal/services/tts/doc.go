// Package tts synthesizes narration audio.
//
// Two providers are supported: the free edge-tts command line client and the
// hosted ElevenLabs API. Every call runs under a failsafe-go timeout; the
// ElevenLabs client also retries 429 and 5xx responses. Choosing between
// primary and fallback is the caller's job.
package tts
