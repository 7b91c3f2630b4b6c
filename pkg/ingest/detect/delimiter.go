package detect

import (
	"math"
)

// sniffLines bounds how much of a file Delimiter looks at.
const sniffLines = 64

var delimiterCandidates = []rune{',', '\t', ';', '|'}

// Delimiter guesses the field delimiter of a CSV sample: the candidate that
// appears at least once per line with the most consistent count wins.
// Comma is returned when nothing stands out.
func Delimiter(sample []byte) rune {
	best := ','
	bestScore := math.MaxFloat64

	for _, delim := range delimiterCandidates {
		counts := countDelimiterPerLine(sample, byte(delim))
		if len(counts) == 0 {
			continue
		}

		avg := mean(counts)
		if avg < 1 {
			continue
		}

		score := variance(counts) / avg
		if score < bestScore {
			bestScore = score
			best = delim
		}
	}

	return best
}

func countDelimiterPerLine(sample []byte, delim byte) []int {
	var counts []int
	inQuote := false
	count := 0

	for _, b := range sample {
		if b == '"' {
			inQuote = !inQuote
			continue
		}
		if inQuote {
			continue
		}
		switch b {
		case delim:
			count++
		case '\n':
			counts = append(counts, count)
			count = 0
			if len(counts) == sniffLines {
				return counts
			}
		}
	}
	if count > 0 {
		counts = append(counts, count)
	}
	return counts
}

func mean(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

func variance(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		diff := float64(v) - m
		sum += diff * diff
	}
	return sum / float64(len(values))
}
