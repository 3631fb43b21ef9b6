package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stardeck/api/internal/store"
)

type Service struct {
	store NoteStore
	now   func() time.Time
}

func NewService(store NoteStore) *Service {
	return &Service{store: store, now: time.Now}
}

// Export fetches the selected notes and renders them in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	notes, err := s.store.ListNotesForExport(ctx, req.UserID, req.IncludeOthers, req.ShowIDs, req.SeasonIDs, req.EpisodeIDs, req.MovieIDs)
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}

	generatedAt := s.now()
	filename := "viewing-notes-" + generatedAt.Format("2006-01-02")

	switch req.Format {
	case FormatJSON, "":
		return renderJSON(notes, filename)
	case FormatMarkdown:
		return &Result{
			Data:     renderMarkdown(notes, req.Username, generatedAt),
			Filename: filename + ".md",
			MimeType: "text/markdown; charset=utf-8",
		}, nil
	case FormatPDF:
		html, err := renderHTML(notes, req.Username, generatedAt)
		if err != nil {
			return nil, err
		}
		return exportPDF(html, filename)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
}

type exportedNote struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func renderJSON(notes []store.ExportNote, filename string) (*Result, error) {
	out := make([]exportedNote, 0, len(notes))
	for _, note := range notes {
		out = append(out, exportedNote{
			Type:      string(note.Target.Type),
			ID:        note.Target.ID,
			Title:     note.Title,
			Author:    note.Username,
			Content:   note.Content,
			CreatedAt: note.CreatedAt,
			UpdatedAt: note.UpdatedAt,
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal notes: %w", err)
	}
	return &Result{
		Data:     data,
		Filename: filename + ".json",
		MimeType: "application/json",
	}, nil
}
