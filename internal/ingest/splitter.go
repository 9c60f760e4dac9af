package ingest

import (
	"fmt"
	"strings"
)

// defaultSeparators are tried from largest to smallest semantic unit.
var defaultSeparators = []string{"\n\n", "\n", ", ", " ", ""}

// Splitter breaks text into overlapping chunks, recursively trying a list of
// separators so semantically related parts stay together as long as possible.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewSplitter creates a recursive character splitter.
func NewSplitter(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", chunkOverlap, chunkSize)
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}, nil
}

// SplitText splits one text into chunks.
func (s *Splitter) SplitText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.splitRecursive(text, s.separators)
}

func (s *Splitter) splitRecursive(text string, separators []string) []string {
	if len(text) <= s.chunkSize {
		return []string{text}
	}
	if len(separators) == 0 {
		return []string{text}
	}

	separator := separators[0]
	remainingSeparators := separators[1:]

	splits := strings.Split(text, separator)
	var goodSplits []string
	currentSplit := ""

	for _, split := range splits {
		if len(split) == 0 {
			continue
		}

		if len(currentSplit) > 0 && len(currentSplit)+len(separator)+len(split) <= s.chunkSize {
			currentSplit += separator + split
		} else {
			if len(currentSplit) > 0 {
				goodSplits = append(goodSplits, currentSplit)
			}
			currentSplit = split
		}
	}
	if currentSplit != "" {
		goodSplits = append(goodSplits, currentSplit)
	}

	var finalChunks []string
	for _, split := range goodSplits {
		if len(split) <= s.chunkSize {
			finalChunks = append(finalChunks, split)
		} else {
			finalChunks = append(finalChunks, s.splitRecursive(split, remainingSeparators)...)
		}
	}

	if s.chunkOverlap > 0 && len(finalChunks) > 1 {
		return s.mergeWithOverlap(finalChunks)
	}
	return finalChunks
}

// mergeWithOverlap combines chunks, carrying a tail of the previous chunk
// into the next one so context is not lost at chunk boundaries.
func (s *Splitter) mergeWithOverlap(chunks []string) []string {
	var mergedChunks []string
	currentChunk := ""
	separator := "\n"

	for i, chunk := range chunks {
		if currentChunk == "" {
			currentChunk = chunk
			if i == len(chunks)-1 {
				mergedChunks = append(mergedChunks, currentChunk)
			}
			continue
		}

		var overlap string
		if len(currentChunk) > s.chunkOverlap {
			overlap = currentChunk[len(currentChunk)-s.chunkOverlap:]
		} else {
			overlap = currentChunk
		}

		if len(currentChunk)+len(separator)+len(chunk) <= s.chunkSize {
			currentChunk += separator + chunk
		} else {
			mergedChunks = append(mergedChunks, currentChunk)

			// Trim the carried tail so the merged chunk stays within the
			// size limit.
			if avail := s.chunkSize - len(separator) - len(chunk); len(overlap) > avail {
				if avail <= 0 {
					overlap = ""
				} else {
					overlap = overlap[len(overlap)-avail:]
				}
			}
			if overlap == "" {
				currentChunk = chunk
			} else {
				currentChunk = overlap + separator + chunk
			}
		}

		if i == len(chunks)-1 {
			mergedChunks = append(mergedChunks, currentChunk)
		}
	}

	return mergedChunks
}
