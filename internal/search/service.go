package search

import (
	"context"
	"log"
)

// Service tries Meilisearch first and falls back to the Postgres scan.
type Service struct {
	meili   *Meili
	catalog *PgCatalog
}

// NewService creates a search service. meili may be nil when Meilisearch is
// not configured.
func NewService(meili *Meili, catalog *PgCatalog) *Service {
	return &Service{meili: meili, catalog: catalog}
}

func (s *Service) Search(ctx context.Context, text string, limit int) []Result {
	if s.meili != nil && s.meili.Healthy() {
		results, err := s.meili.Search(text, limit)
		if err == nil {
			return results
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	results, err := s.catalog.Search(ctx, text, limit)
	if err != nil {
		log.Printf("search: postgres fallback error: %v", err)
		return []Result{}
	}
	return results
}

// Reindex reads the catalog out of Postgres and pushes it to Meilisearch.
// Called at startup; a no-op when Meilisearch is down.
func (s *Service) Reindex(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.catalog == nil {
		return
	}
	shows, movies, err := s.catalog.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexShows(shows); err != nil {
		log.Printf("search: reindex shows: %v", err)
	}
	if err := s.meili.IndexMovies(movies); err != nil {
		log.Printf("search: reindex movies: %v", err)
	}
}
