package structured

import "strings"

// Extract pulls the JSON candidate out of free-form model output. It prefers,
// in order: the first ```json fence (label compared case-insensitively), the
// first fence of any label, the first balanced {...} object, and finally the
// raw text unchanged.
func Extract(raw string) string {
	blocks := fencedBlocks(raw)
	for _, b := range blocks {
		if strings.EqualFold(b.label, "json") {
			return b.body
		}
	}
	if len(blocks) > 0 {
		return blocks[0].body
	}
	if obj, ok := firstBalancedObject(raw); ok {
		return obj
	}
	return raw
}

type fence struct {
	label string
	body  string
}

// fencedBlocks splits text on ``` markers. An unterminated final fence runs to
// the end of the text.
func fencedBlocks(text string) []fence {
	var blocks []fence
	rest := text
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			return blocks
		}
		rest = rest[start+3:]
		label := ""
		nl := strings.IndexByte(rest, '\n')
		closing := strings.Index(rest, "```")
		if nl >= 0 && (closing < 0 || nl < closing) {
			if candidate := strings.TrimSpace(rest[:nl]); !strings.ContainsAny(candidate, "{[\"") {
				label = candidate
				rest = rest[nl+1:]
			}
		}
		end := strings.Index(rest, "```")
		if end < 0 {
			blocks = append(blocks, fence{label: label, body: strings.TrimSpace(rest)})
			return blocks
		}
		blocks = append(blocks, fence{label: label, body: strings.TrimSpace(rest[:end])})
		rest = rest[end+3:]
	}
}

// firstBalancedObject returns the first {...} substring whose braces balance,
// ignoring braces inside JSON strings.
func firstBalancedObject(text string) (string, bool) {
	for offset := 0; offset < len(text); {
		idx := strings.IndexByte(text[offset:], '{')
		if idx < 0 {
			return "", false
		}
		start := offset + idx
		if end, ok := matchBrace(text, start); ok {
			return text[start : end+1], true
		}
		offset = start + 1
	}
	return "", false
}

func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
