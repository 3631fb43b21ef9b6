// Package search finds catalog entries by title. Meilisearch serves queries
// when it is reachable, a Postgres ILIKE scan covers for it when it is not.
package search

// ResultType identifies which catalog index a hit came from.
type ResultType string

const (
	ResultShow  ResultType = "show"
	ResultMovie ResultType = "movie"
)

// Result is one catalog hit. ID refers to the show or movie row.
type Result struct {
	Type  ResultType `json:"type"`
	ID    string     `json:"id"`
	Title string     `json:"title"`
}

// CatalogRecord is the indexed shape for both shows and movies.
type CatalogRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}
