package export

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"stardeck/api/internal/store"
)

var notesTemplate = template.Must(template.New("notes").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
	body { font-family: Georgia, serif; color: #1a1a1a; max-width: 7in; margin: 0 auto; }
	h1 { font-size: 22pt; border-bottom: 2px solid #1a1a1a; padding-bottom: 8px; }
	h2 { font-size: 14pt; margin-top: 24px; page-break-after: avoid; }
	.meta { color: #666; font-size: 9pt; margin-bottom: 16px; }
	.note { margin-bottom: 14px; page-break-inside: avoid; }
	.author { font-weight: bold; font-size: 10pt; }
	.date { color: #666; font-size: 9pt; }
	.content { font-size: 11pt; white-space: pre-wrap; margin-top: 4px; }
	.empty { color: #666; font-style: italic; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="meta">Exported for {{.Owner}} on {{.GeneratedAt}}</div>
{{if not .Sections}}<p class="empty">No notes matched the selection.</p>{{end}}
{{range .Sections}}
<h2>{{.Title}}</h2>
{{range .Notes}}
<div class="note">
	<span class="author">{{.Username}}</span>
	<span class="date">{{.Date}}</span>
	<div class="content">{{.Content}}</div>
</div>
{{end}}
{{end}}
</body>
</html>`))

type notesPage struct {
	Title       string
	Owner       string
	GeneratedAt string
	Sections    []noteSection
}

type noteSection struct {
	Title string
	Notes []noteEntry
}

type noteEntry struct {
	Username string
	Date     string
	Content  string
}

func renderHTML(notes []store.ExportNote, owner string, generatedAt time.Time) (string, error) {
	page := notesPage{
		Title:       "Viewing Notes",
		Owner:       owner,
		GeneratedAt: generatedAt.Format("January 2, 2006"),
	}

	for _, note := range notes {
		entry := noteEntry{
			Username: note.Username,
			Date:     note.UpdatedAt.Format("2006-01-02"),
			Content:  note.Content,
		}
		if n := len(page.Sections); n > 0 && page.Sections[n-1].Title == note.Title {
			page.Sections[n-1].Notes = append(page.Sections[n-1].Notes, entry)
			continue
		}
		page.Sections = append(page.Sections, noteSection{Title: note.Title, Notes: []noteEntry{entry}})
	}

	var buf bytes.Buffer
	if err := notesTemplate.Execute(&buf, page); err != nil {
		return "", fmt.Errorf("render notes template: %w", err)
	}
	return buf.String(), nil
}
