package textsplit

// MinBreakRatio is the fraction of maxSize below which a line break is
// ignored as a cut point.
const MinBreakRatio = 0.6

// Split cuts text into chunks of at most maxSize runes. It prefers to cut
// at the last line break inside the window, unless that break falls before
// MinBreakRatio of maxSize, in which case the window is hard-cut at maxSize.
// Concatenating the returned chunks yields text unchanged.
func Split(text string, maxSize int) []string {
	if text == "" {
		return nil
	}
	if maxSize <= 0 {
		return []string{text}
	}

	remaining := []rune(text)
	minCut := int(float64(maxSize) * MinBreakRatio)
	var chunks []string

	for len(remaining) > 0 {
		if len(remaining) <= maxSize {
			chunks = append(chunks, string(remaining))
			break
		}

		cut := lastNewline(remaining[:maxSize])
		if cut <= 0 || cut < minCut {
			cut = maxSize
		}

		chunks = append(chunks, string(remaining[:cut]))
		remaining = remaining[cut:]
	}

	return chunks
}

// Head returns the first size runes of text and the rest.
func Head(text string, size int) (string, string) {
	runes := []rune(text)
	if size <= 0 || len(runes) <= size {
		return text, ""
	}
	return string(runes[:size]), string(runes[size:])
}

func lastNewline(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == '\n' {
			return i
		}
	}
	return -1
}
