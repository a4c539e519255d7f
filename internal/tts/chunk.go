package tts

import "strings"

// MaxChunkChars is the per-request transcript budget. Roughly 2000 tokens
// at ~4 characters per token, matching provider request limits.
const MaxChunkChars = 8000

// SplitText splits a transcript into provider-sized chunks at sentence
// boundaries, falling back to word boundaries for pathological sentences.
// Chunks joined with single spaces reproduce the canonical transcript, so
// chunked synthesis narrates exactly the aligned text.
func SplitText(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = MaxChunkChars
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}
	if len(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	for _, sent := range splitSentences(text) {
		if cur.Len() > 0 && cur.Len()+1+len(sent) > maxChars {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if len(sent) > maxChars {
			// A single oversized sentence: split on words.
			for _, piece := range splitWords(sent, maxChars) {
				if cur.Len() > 0 && cur.Len()+1+len(piece) > maxChars {
					chunks = append(chunks, cur.String())
					cur.Reset()
				}
				appendPart(&cur, piece)
			}
			continue
		}
		appendPart(&cur, sent)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

func appendPart(b *strings.Builder, s string) {
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	b.WriteString(s)
}

// splitSentences breaks text after terminal punctuation. Good enough for
// narration chunking; the split points only affect request sizing, never
// the rendered text.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			// Consume trailing quotes/brackets and the following space.
			j := i + 1
			for j < len(text) && (text[j] == '"' || text[j] == '\'' || text[j] == ')') {
				j++
			}
			if j >= len(text) || text[j] == ' ' {
				out = append(out, strings.TrimSpace(text[start:j]))
				start = j
				i = j
			}
		}
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func splitWords(s string, maxChars int) []string {
	words := strings.Fields(s)
	var out []string
	var cur strings.Builder
	for _, w := range words {
		if cur.Len() > 0 && cur.Len()+1+len(w) > maxChars {
			out = append(out, cur.String())
			cur.Reset()
		}
		appendPart(&cur, w)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
