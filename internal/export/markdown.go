package export

import (
	"fmt"
	"strings"
	"time"

	"stardeck/api/internal/store"
)

// renderMarkdown emits the notes in canonical catalog order, one section per
// target. Note content is already Markdown and passes through untouched.
func renderMarkdown(notes []store.ExportNote, owner string, generatedAt time.Time) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# Viewing Notes\n\n")
	fmt.Fprintf(&b, "Exported for %s on %s\n\n", owner, generatedAt.Format("January 2, 2006"))

	if len(notes) == 0 {
		b.WriteString("_No notes matched the selection._\n")
		return []byte(b.String())
	}

	lastTitle := ""
	for _, note := range notes {
		if note.Title != lastTitle {
			fmt.Fprintf(&b, "## %s\n\n", note.Title)
			lastTitle = note.Title
		}
		fmt.Fprintf(&b, "**%s** (%s)\n\n", note.Username, note.UpdatedAt.Format("2006-01-02"))
		b.WriteString(strings.TrimSpace(note.Content))
		b.WriteString("\n\n")
	}

	return []byte(b.String())
}
