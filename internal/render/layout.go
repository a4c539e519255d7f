package render

// Line is one row of word indices into the timestamp model.
type Line []int

// Screen is the window of words shown while any of its words is active.
type Screen struct {
	Lines     []Line
	FirstWord int
	LastWord  int
}

// Paginate splits word indices 0..wordCount-1 into screens of
// wordsPerLine x linesPerScreen. It is a pure function of its arguments:
// the same inputs always produce the same screens, so the layout can be
// computed once per job (or recomputed at any tick) with identical results.
// A word never straddles a line boundary because lines are built by word
// count, not by pixel measurement.
func Paginate(wordCount, wordsPerLine, linesPerScreen int) []Screen {
	if wordCount <= 0 || wordsPerLine <= 0 || linesPerScreen <= 0 {
		return nil
	}

	perScreen := wordsPerLine * linesPerScreen
	screens := make([]Screen, 0, (wordCount+perScreen-1)/perScreen)

	for first := 0; first < wordCount; first += perScreen {
		last := first + perScreen
		if last > wordCount {
			last = wordCount
		}
		s := Screen{FirstWord: first, LastWord: last - 1}
		for w := first; w < last; w += wordsPerLine {
			lineEnd := w + wordsPerLine
			if lineEnd > last {
				lineEnd = last
			}
			line := make(Line, 0, lineEnd-w)
			for i := w; i < lineEnd; i++ {
				line = append(line, i)
			}
			s.Lines = append(s.Lines, line)
		}
		screens = append(screens, s)
	}
	return screens
}

// ScreenFor returns the index of the screen containing the given word.
func ScreenFor(wordIdx, wordsPerLine, linesPerScreen int) int {
	if wordIdx < 0 {
		return 0
	}
	return wordIdx / (wordsPerLine * linesPerScreen)
}
