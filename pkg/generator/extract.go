package generator

import (
	"regexp"
	"strings"
)

var fencedRe = regexp.MustCompile("(?s)```(?:python)?\n(.*?)```")

// codePrefixes start lines that the heuristic scan treats as code
var codePrefixes = []string{"import", "from", "def", "for", "while", "if", "class"}

// ExtractFenced returns the first fenced code block of response, if any
func ExtractFenced(response string) (string, bool) {
	m := fencedRe.FindStringSubmatch(response)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// ExtractCode pulls a script out of a model response. The first fenced block
// wins; without fencing, lines are scanned heuristically.
func ExtractCode(response string) string {
	if code, ok := ExtractFenced(response); ok {
		return code
	}
	return ScanCodeLines(response)
}

// ScanCodeLines collects the first run of code-looking lines. A line is code
// when it starts with a keyword from codePrefixes or with whitespace. Blank
// lines inside the run are kept; the first other line ends it.
func ScanCodeLines(response string) string {
	var code []string
	started := false

	for _, line := range strings.Split(response, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed != "" && (hasCodePrefix(trimmed) || line[0] == ' ' || line[0] == '\t'):
			started = true
			code = append(code, line)
		case started && trimmed == "":
			code = append(code, line)
		case started:
			return strings.TrimSpace(strings.Join(code, "\n"))
		}
	}

	return strings.TrimSpace(strings.Join(code, "\n"))
}

func hasCodePrefix(line string) bool {
	for _, p := range codePrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}
