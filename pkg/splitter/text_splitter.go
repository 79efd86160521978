package splitter

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// NoteSplitter chunks research notes for the archive. Every chunk after the
// first is prefixed with the note heading so it stays attributable.
type NoteSplitter struct {
	splitter textsplitter.RecursiveCharacter
}

func NewNoteSplitter(chunkSize, chunkOverlap int) *NoteSplitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 5
	}
	return &NoteSplitter{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

// SplitNote splits text and carries heading into every chunk that lost it.
func (s *NoteSplitter) SplitNote(heading, text string) ([]string, error) {
	chunks, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split note: %w", err)
	}
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if heading != "" && !strings.Contains(c, heading) {
			c = heading + "\n" + c
		}
		out = append(out, c)
	}
	return out, nil
}
