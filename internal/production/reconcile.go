package production

import "math"

// DefaultMaxSegmentSeconds caps a single rendered clip.
const DefaultMaxSegmentSeconds = 8.0

// DeclaredSeconds sums the declared prompt lengths.
func DeclaredSeconds(prompts []Prompt) float64 {
	var total float64
	for _, p := range prompts {
		total += math.Max(p.Seconds, 0)
	}
	return total
}

// Reconcile stretches prompts so their declared total covers the narration.
// When the declared total is already at least the narration length the
// prompts are returned unchanged. Otherwise every prompt is scaled by
// narration/declared and capped at maxSeconds; whatever the cap cuts off is
// covered later by holding the last frame. Before scaling, prompts without a
// declared length take the mean of the declared ones, and when no prompt
// declares a length the narration is split evenly. The input slice is never
// modified.
func Reconcile(prompts []Prompt, narrationSeconds, maxSeconds float64) []Prompt {
	out := make([]Prompt, len(prompts))
	copy(out, prompts)
	if len(out) == 0 || narrationSeconds <= 0 {
		return out
	}
	if maxSeconds <= 0 {
		maxSeconds = DefaultMaxSegmentSeconds
	}
	declared := DeclaredSeconds(out)
	if declared >= narrationSeconds {
		return out
	}
	counted := 0
	for _, p := range out {
		if p.Seconds > 0 {
			counted++
		}
	}
	if counted == 0 {
		even := math.Min(narrationSeconds/float64(len(out)), maxSeconds)
		for i := range out {
			out[i].Seconds = even
		}
		return out
	}
	if counted < len(out) {
		mean := declared / float64(counted)
		for i := range out {
			if out[i].Seconds <= 0 {
				out[i].Seconds = mean
			}
		}
		declared = mean * float64(len(out))
		if declared >= narrationSeconds {
			return out
		}
	}
	factor := narrationSeconds / declared
	for i := range out {
		out[i].Seconds = math.Min(out[i].Seconds*factor, maxSeconds)
	}
	return out
}

// requestSeconds converts a reconciled length into the whole seconds a
// render request carries.
func requestSeconds(seconds float64) int {
	n := int(math.Ceil(seconds - 1e-9))
	if n < 1 {
		return 1
	}
	return n
}
