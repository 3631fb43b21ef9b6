package search

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxShows  = "stardeck_shows"
	idxMovies = "stardeck_movies"
)

// Meili wraps the Meilisearch client with a background health monitor so a
// dead search node degrades to the Postgres fallback instead of failing
// requests.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	for _, uid := range []string{idxShows, idxMovies} {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: uid, PrimaryKey: "id"}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", uid, err)
		}
		searchable := []string{"title", "description"}
		if _, err := m.client.Index(uid).UpdateSearchableAttributes(&searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries both catalog indexes and merges the hits.
func (m *Meili) Search(text string, limit int) ([]Result, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}
	if limit == 0 {
		limit = 50
	}

	queries := []*meili.SearchRequest{
		{IndexUID: idxShows, Query: text, Limit: int64(limit)},
		{IndexUID: idxMovies, Query: text, Limit: int64(limit)},
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	results := make([]Result, 0)
	for _, sr := range resp.Results {
		rtyp := ResultShow
		if sr.IndexUID == idxMovies {
			rtyp = ResultMovie
		}
		for _, hit := range sr.Hits {
			results = append(results, Result{
				Type:  rtyp,
				ID:    decodeString(hit, "id"),
				Title: decodeString(hit, "title"),
			})
		}
	}
	return results, nil
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// IndexShows bulk-indexes show records.
func (m *Meili) IndexShows(records []CatalogRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxShows).AddDocuments(records, nil)
	return err
}

// IndexMovies bulk-indexes movie records.
func (m *Meili) IndexMovies(records []CatalogRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxMovies).AddDocuments(records, nil)
	return err
}
