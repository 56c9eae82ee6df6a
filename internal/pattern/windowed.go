package pattern

// MatchWindowed matches candidate against pattern using chunks of width
// chunkSize.
func MatchWindowed(pattern, candidate string, chunkSize int) bool {
	m, _ := Compile(Windowed, pattern, chunkSize)
	return m.Match(candidate)
}

func compileChunks(pattern string, size int) []chunk {
	chunks := make([]chunk, 0, (len(pattern)+size-1)/size)
	labels := make(map[string]int)
	for i := 0; i < len(pattern); i += size {
		end := i + size
		if end > len(pattern) {
			end = len(pattern)
		}
		text := pattern[i:end]
		if allDigits(text) {
			chunks = append(chunks, chunk{text: text, literal: true})
			continue
		}
		id, ok := labels[text]
		if !ok {
			id = len(labels)
			labels[text] = id
		}
		chunks = append(chunks, chunk{text: text, label: id})
	}
	return chunks
}

func (m *Matcher) matchChunks(candidate string) bool {
	// bound[label] holds the candidate chunk the label was first seen with
	var bound []string
	pos := 0
	for _, c := range m.chunks {
		got := candidate[pos : pos+len(c.text)]
		pos += len(c.text)
		if c.literal {
			if got != c.text {
				return false
			}
			continue
		}
		for len(bound) <= c.label {
			bound = append(bound, "")
		}
		if bound[c.label] == "" {
			bound[c.label] = got
			continue
		}
		if bound[c.label] != got {
			return false
		}
	}
	return true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
