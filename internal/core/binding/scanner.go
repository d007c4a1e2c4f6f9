package binding

import (
	"bytes"
	"encoding/json"
	"iter"
	"strings"
)

// Block is one brace-matched JSON object found inside free text.
// Raw is text[Start:End].
type Block struct {
	Raw    string
	Start  int
	End    int
	Fields map[string]any
}

// Scan yields every well-formed JSON object embedded in text, left to right.
// Surrounding prose is ignored. Braces inside JSON strings do not count towards
// nesting. Malformed or unterminated candidates are skipped and scanning resumes
// after their opening brace. The sequence can be ranged over any number of times.
func Scan(text string) iter.Seq[Block] {
	return func(yield func(Block) bool) {
		for i := 0; i < len(text); {
			open := strings.IndexByte(text[i:], '{')
			if open < 0 {
				return
			}
			start := i + open

			end, ok := matchBrace(text, start)
			if !ok {
				i = start + 1
				continue
			}

			fields, err := decodeObject(text[start:end])
			if err != nil {
				i = start + 1
				continue
			}

			if !yield(Block{Raw: text[start:end], Start: start, End: end, Fields: fields}) {
				return
			}
			i = end
		}
	}
}

// Entries yields the entry-style binding of every block in text whose
// descriptor can be classified. Unclassifiable blocks are skipped.
func Entries(text string) iter.Seq2[Binding, Block] {
	return func(yield func(Binding, Block) bool) {
		for block := range Scan(text) {
			b, err := DecodeEntry(block.Fields)
			if err != nil {
				continue
			}
			if !yield(b, block) {
				return
			}
		}
	}
}

// matchBrace returns the index just past the brace closing the one at start.
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
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
				return i + 1, true
			}
		}
	}
	return 0, false
}

func decodeObject(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}
