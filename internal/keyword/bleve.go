package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

// deleteBatchSize bounds how many scene documents are removed per batch.
const deleteBatchSize = 500

// SceneIndex implements Index using Bleve.
type SceneIndex struct {
	index bleve.Index
}

func newSceneMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	// standard analyzer: lowercase + tokenize, no stemming, so "knight" matches "Knight" exactly
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	docMapping.AddFieldMappingsAt("story_id", bleve.NewKeywordFieldMapping())
	im.AddDocumentMapping("scene", docMapping)
	im.DefaultType = "scene"
	im.DefaultMapping = docMapping
	return im
}

// NewSceneIndex creates or opens a Bleve index at path. An empty path creates an in-memory index.
// If you change the index mapping, remove the index directory to force a rebuild.
func NewSceneIndex(path string) (*SceneIndex, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(newSceneMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &SceneIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &SceneIndex{index: index}, nil
	}

	index, err := bleve.New(path, newSceneMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &SceneIndex{index: index}, nil
}

// IndexScenes replaces the indexed scenes of storyID with scenes, numbered from 1.
func (s *SceneIndex) IndexScenes(ctx context.Context, storyID string, scenes []string) error {
	if err := s.DeleteStory(ctx, storyID); err != nil {
		return err
	}
	batch := s.index.NewBatch()
	for i, text := range scenes {
		doc := map[string]interface{}{
			"story_id": storyID,
			"text":     text,
		}
		if err := batch.Index(sceneDocID(storyID, i+1), doc); err != nil {
			return fmt.Errorf("failed to add scene %d to batch: %w", i+1, err)
		}
	}
	if err := s.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index scenes: %w", err)
	}
	return nil
}

// Search runs a match query over scene text and returns up to limit hits, best first.
func (s *SceneIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*SceneHit, error) {
	var q blevequery.Query
	if opts != nil && opts.FuzzyEnabled {
		fuzziness := opts.Fuzziness
		if fuzziness <= 0 {
			fuzziness = 1
		}
		q = buildFuzzyQuery(query, fuzziness)
	} else {
		mq := bleve.NewMatchQuery(query)
		mq.SetField("text")
		q = mq
	}
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	if opts != nil && opts.Highlight {
		req.Highlight = bleve.NewHighlight()
		req.Highlight.AddField("text")
	}
	results, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*SceneHit, 0, len(results.Hits))
	for _, hit := range results.Hits {
		storyID, n, err := parseSceneDocID(hit.ID)
		if err != nil {
			continue
		}
		out = append(out, &SceneHit{StoryID: storyID, Index: n, Score: hit.Score, Fragments: hit.Fragments["text"]})
	}
	return out, nil
}

// buildFuzzyQuery creates a disjunction of FuzzyQueries over the text field, one per term.
func buildFuzzyQuery(query string, fuzziness int) blevequery.Query {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		mq := bleve.NewMatchQuery(query)
		mq.SetField("text")
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField("text")
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// DeleteStory removes every indexed scene of storyID.
func (s *SceneIndex) DeleteStory(ctx context.Context, storyID string) error {
	for {
		tq := bleve.NewTermQuery(storyID)
		tq.SetField("story_id")
		req := bleve.NewSearchRequest(tq)
		req.Size = deleteBatchSize
		results, err := s.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to find scenes of %s: %w", storyID, err)
		}
		if len(results.Hits) == 0 {
			return nil
		}
		batch := s.index.NewBatch()
		for _, hit := range results.Hits {
			batch.Delete(hit.ID)
		}
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete scenes of %s: %w", storyID, err)
		}
	}
}

// DocCount returns the total number of indexed scenes.
func (s *SceneIndex) DocCount() (uint64, error) {
	return s.index.DocCount()
}

// Close closes the Bleve index.
func (s *SceneIndex) Close() error {
	return s.index.Close()
}
