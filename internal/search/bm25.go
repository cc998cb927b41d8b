package search

import (
	"fmt"
	"log"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Result is one keyword search hit.
type Result struct {
	ChunkID string
	Score   float64
	File    string
	Format  string
}

// Index provides BM25 keyword search over indexed chunks.
type Index struct {
	index bleve.Index
	path  string
}

// OpenIndex opens or creates the keyword index next to the chunk database.
// A corrupted index is deleted and rebuilt rather than failing the session.
func OpenIndex(dbPath string) (*Index, error) {
	indexPath := dbPath + ".bleve"

	index, err := bleve.Open(indexPath)
	if err == bleve.ErrorIndexPathDoesNotExist {
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create keyword index: %w", err)
		}
	} else if err != nil {
		log.Printf("⚠️  keyword index unreadable (%v), recreating", err)
		if index != nil {
			index.Close()
		}
		if err := os.RemoveAll(indexPath); err != nil {
			return nil, fmt.Errorf("failed to remove corrupted index: %w", err)
		}
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to recreate keyword index: %w", err)
		}
	}

	return &Index{index: index, path: indexPath}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	chunkMapping := bleve.NewDocumentMapping()

	idField := bleve.NewTextFieldMapping()
	idField.Analyzer = keyword.Name
	idField.Store = true
	chunkMapping.AddFieldMappingsAt("chunk_id", idField)

	sessionField := bleve.NewTextFieldMapping()
	sessionField.Analyzer = keyword.Name
	sessionField.Store = true
	chunkMapping.AddFieldMappingsAt("session_id", sessionField)

	fileField := bleve.NewTextFieldMapping()
	fileField.Analyzer = keyword.Name
	fileField.Store = true
	chunkMapping.AddFieldMappingsAt("file", fileField)

	formatField := bleve.NewTextFieldMapping()
	formatField.Analyzer = keyword.Name
	formatField.Store = true
	chunkMapping.AddFieldMappingsAt("format", formatField)

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	textField.Store = false
	chunkMapping.AddFieldMappingsAt("text", textField)

	indexMapping.DefaultMapping = chunkMapping
	return indexMapping
}

// IndexDocs adds documents in one batch.
func (ix *Index) IndexDocs(docs []Document) error {
	batch := ix.index.NewBatch()
	for _, d := range docs {
		doc := map[string]interface{}{
			"chunk_id":   d.ChunkID,
			"session_id": d.SessionID,
			"file":       d.File,
			"format":     d.Format,
			"text":       d.Text,
		}
		if err := batch.Index(d.ChunkID, doc); err != nil {
			return fmt.Errorf("failed to batch chunk %s: %w", d.ChunkID, err)
		}
	}
	return ix.index.Batch(batch)
}

// DeleteDocs removes documents by chunk id in one batch.
func (ix *Index) DeleteDocs(chunkIDs []string) error {
	batch := ix.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(id)
	}
	return ix.index.Batch(batch)
}

// Search runs a BM25 match query scoped to one session and returns the top
// k hits by score.
func (ix *Index) Search(query, sessionID string, k int) ([]Result, error) {
	if k <= 0 {
		k = 10
	}

	match := bleve.NewMatchQuery(query)
	sessionQuery := bleve.NewTermQuery(sessionID)
	sessionQuery.SetField("session_id")
	combined := bleve.NewConjunctionQuery(match, sessionQuery)

	req := bleve.NewSearchRequest(combined)
	req.Size = k
	req.Fields = []string{"chunk_id", "file", "format"}

	res, err := ix.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	results := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		r := Result{ChunkID: hit.ID, Score: hit.Score}
		if f, ok := hit.Fields["file"].(string); ok {
			r.File = f
		}
		if f, ok := hit.Fields["format"].(string); ok {
			r.Format = f
		}
		results = append(results, r)
	}
	return results, nil
}

// Close closes the underlying index.
func (ix *Index) Close() error {
	return ix.index.Close()
}
