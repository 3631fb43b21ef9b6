package search

import (
	"context"
	"database/sql"
	"fmt"
)

// PgCatalog is the fallback searcher: a case-insensitive substring match over
// show and movie titles and descriptions.
type PgCatalog struct {
	db *sql.DB
}

func NewPgCatalog(db *sql.DB) *PgCatalog {
	return &PgCatalog{db: db}
}

func (p *PgCatalog) Search(ctx context.Context, text string, limit int) ([]Result, error) {
	if limit == 0 {
		limit = 50
	}
	pattern := "%" + text + "%"

	rows, err := p.db.QueryContext(ctx, `
		SELECT 'show', id, title FROM shows
		WHERE title ILIKE $1 OR description ILIKE $1
		UNION ALL
		SELECT 'movie', id, title FROM movies
		WHERE title ILIKE $1 OR description ILIKE $1
		ORDER BY 3 ASC
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog search: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.Type, &r.ID, &r.Title); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search results: %w", err)
	}
	return results, nil
}

// LoadAllRecords reads the full catalog for reindexing into Meilisearch.
func (p *PgCatalog) LoadAllRecords(ctx context.Context) (shows, movies []CatalogRecord, err error) {
	shows, err = p.loadRecords(ctx, `SELECT id, title, description FROM shows`)
	if err != nil {
		return nil, nil, err
	}
	movies, err = p.loadRecords(ctx, `SELECT id, title, description FROM movies`)
	if err != nil {
		return nil, nil, err
	}
	return shows, movies, nil
}

func (p *PgCatalog) loadRecords(ctx context.Context, query string) ([]CatalogRecord, error) {
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load catalog records: %w", err)
	}
	defer rows.Close()

	records := make([]CatalogRecord, 0)
	for rows.Next() {
		var r CatalogRecord
		if err := rows.Scan(&r.ID, &r.Title, &r.Description); err != nil {
			return nil, fmt.Errorf("scan catalog record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog records: %w", err)
	}
	return records, nil
}
