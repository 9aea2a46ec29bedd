// Package quality computes cheap heuristic metrics over generated code. The
// scores are observability signals for the refinement loop, not gates.
package quality

import "strings"

const (
	initialScore          = 100.0
	longLineLimit         = 80
	longLinePenalty       = 0.5
	missingCommentPenalty = 1.0
)

// Score rates code from 0 to 100, docking points for overlong lines and for
// a complete absence of comments.
func Score(code string) float64 {
	score := initialScore
	lines := strings.Split(code, "\n")
	for _, line := range lines {
		if len(line) > longLineLimit {
			score -= longLinePenalty
		}
	}
	if !hasComment(lines) {
		score -= missingCommentPenalty
	}
	if score < 0 {
		return 0
	}
	return score
}

// Complexity approximates cyclomatic complexity by counting branch keywords.
func Complexity(code string) float64 {
	count := 1.0
	for _, kw := range []string{"if ", "for ", "while "} {
		count += float64(strings.Count(code, kw))
	}
	return count
}

func hasComment(lines []string) bool {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") || strings.Contains(line, "# ") {
			return true
		}
	}
	return false
}
