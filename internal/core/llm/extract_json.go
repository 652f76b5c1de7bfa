package llm

// extractJSON returns the first balanced JSON object or array embedded in
// text. Models wrap JSON in prose or markdown fences often enough that
// decoding the raw output directly is hopeless. Returns "" when no balanced
// candidate exists.
func extractJSON(text string) string {
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '{', '[':
			if candidate := balancedFrom(text, i); candidate != "" {
				return candidate
			}
		}
	}

	return ""
}

// balancedFrom scans from an opening brace or bracket and returns the
// substring up to its matching close, honouring string literals and escapes.
func balancedFrom(text string, start int) string {
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
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}

	return ""
}
