package rag

import (
	"strconv"
	"strings"
)

// ExtractCitationIndexes finds [n] citation markers in a markdown answer and
// returns the distinct 1-based indexes in order of first appearance. Markers
// inside fenced code blocks or inline code spans are ignored, as are indexes
// outside [1, numSources].
func ExtractCitationIndexes(answer string, numSources int) []int {
	if numSources <= 0 {
		return nil
	}

	var indexes []int
	seen := make(map[int]bool)

	inFence := false
	for _, line := range strings.Split(answer, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}

		for _, idx := range markersInLine(line) {
			if idx < 1 || idx > numSources || seen[idx] {
				continue
			}
			seen[idx] = true
			indexes = append(indexes, idx)
		}
	}
	return indexes
}

// markersInLine scans one line for [n] markers, skipping inline code spans.
func markersInLine(line string) []int {
	var indexes []int
	inCode := false

	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '`':
			inCode = !inCode
		case '[':
			if inCode {
				continue
			}
			end := strings.IndexByte(line[i+1:], ']')
			if end < 0 {
				return indexes
			}
			if idx, err := strconv.Atoi(line[i+1 : i+1+end]); err == nil {
				indexes = append(indexes, idx)
			}
			i += end + 1
		}
	}
	return indexes
}
