package extract

import "strings"

// markdownBoilerplate reports lines that carry no searchable content:
// embedded image references, pandoc fenced divs, and near-empty lines.
func markdownBoilerplate(line string) bool {
	if strings.HasPrefix(line, "![](") {
		return true
	}
	if strings.HasPrefix(line, ":::") {
		return true
	}
	return len(line) <= 2
}

// SplitTextByLines groups the text's lines into chunks of linesPerChunk,
// dropping boilerplate lines first.
func SplitTextByLines(text string, linesPerChunk int) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if markdownBoilerplate(line) {
			continue
		}
		lines = append(lines, line)
	}
	var chunks []string
	for i := 0; i < len(lines); i += linesPerChunk {
		end := i + linesPerChunk
		if end > len(lines) {
			end = len(lines)
		}
		if chunk := strings.Join(lines[i:end], "\n"); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}
