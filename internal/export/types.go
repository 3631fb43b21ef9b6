// Package export renders a user's notes as JSON, Markdown, or PDF.
package export

import (
	"context"
	"errors"

	"stardeck/api/internal/store"
)

const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatPDF      = "pdf"
)

var (
	ErrUnsupportedFormat    = errors.New("unsupported export format")
	ErrPDFDependencyMissing = errors.New("pdf export unavailable")
)

// Request selects which notes to export and how to render them. Empty
// selection slices across the board mean the whole catalog; a selected show
// or season pulls in the notes of everything underneath it.
type Request struct {
	UserID        string
	Username      string
	IncludeOthers bool
	Format        string
	ShowIDs       []string
	SeasonIDs     []string
	EpisodeIDs    []string
	MovieIDs      []string
}

// Result is a rendered export ready to be written to the response.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// NoteStore is the slice of storage the exporter reads from.
type NoteStore interface {
	ListNotesForExport(ctx context.Context, userID string, includeOthers bool, showIDs, seasonIDs, episodeIDs, movieIDs []string) ([]store.ExportNote, error)
}
