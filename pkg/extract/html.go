package extract

import (
	"regexp"
	"strings"
)

var (
	tagPattern      = regexp.MustCompile(`<[^>]+>`)
	tablePattern    = regexp.MustCompile(`(?is)<table[^>]*>.*?</table>`)
	rowPattern      = regexp.MustCompile(`(?is)<tr[^>]*>(.*?)</tr>`)
	cellPattern     = regexp.MustCompile(`(?is)<t[dh][^>]*>(.*?)</t[dh]>`)
	wsRunPattern    = regexp.MustCompile(`[ \t]+`)
	emptyRunPattern = regexp.MustCompile(`\n{3,}`)
)

func tagStripper() *regexp.Regexp { return tagPattern }

// stripTags flattens an HTML or XML fragment to plain text.
func stripTags(fragment string) string {
	text := tagPattern.ReplaceAllString(fragment, " ")
	text = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&nbsp;", " ").Replace(text)
	return strings.TrimSpace(wsRunPattern.ReplaceAllString(text, " "))
}

// extractHTMLTables returns every <table> element of the fragment verbatim.
func extractHTMLTables(html string) []string {
	return tablePattern.FindAllString(html, -1)
}

// tableToMarkdown renders an HTML table as a GitHub-style markdown table.
func tableToMarkdown(tableHTML string) string {
	rows := rowPattern.FindAllStringSubmatch(tableHTML, -1)
	if len(rows) == 0 {
		return ""
	}
	var b strings.Builder
	for i, row := range rows {
		cells := cellPattern.FindAllStringSubmatch(row[1], -1)
		var values []string
		for _, cell := range cells {
			values = append(values, stripTags(cell[1]))
		}
		b.WriteString("| " + strings.Join(values, " | ") + " |\n")
		if i == 0 {
			sep := make([]string, len(values))
			for j := range sep {
				sep[j] = "---"
			}
			b.WriteString("| " + strings.Join(sep, " | ") + " |\n")
		}
	}
	return strings.TrimSpace(b.String())
}

// Extensions recognized as images when classifying binary attachments.
var imageExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".tif", ".svg",
	".webp", ".emf", ".wmf", ".ico", ".jfif", ".heif", ".heic", ".dds",
	".pcx", ".eps", ".psd",
}

// isImageAttachment classifies an attachment name by extension.
func isImageAttachment(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
