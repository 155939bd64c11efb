package client

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CrawlSummary is one crawl as returned by /crawls/{id} and inside the
// /status/crawls list. Every field is optional upstream.
type CrawlSummary struct {
	ID           *int64  `json:"id"`
	Domain       *string `json:"domain"`
	Status       *string `json:"status"`
	CrawledPages *int64  `json:"crawled_pages"`
	MaxDepth     *int64  `json:"max_depth"`
	StartTime    *string `json:"start_time"`
}

// CrawlList is the /status/crawls response.
type CrawlList struct {
	Items []CrawlSummary `json:"items"`
	Chunk *ChunkMeta     `json:"chunk,omitempty"`
}

// ChunkMeta is the pagination metadata of a chunked response.
type ChunkMeta struct {
	Total *int `json:"total"`
	Page  *int `json:"page"`
	Size  *int `json:"size"`
}

// Result carries a validated model or, in degraded mode, the raw decoded body
// together with the validation failure that caused the fallback.
type Result[T any] struct {
	Value    *T
	Raw      any
	ShapeErr error
}

// Degraded reports whether the result holds unvalidated data.
func (r Result[T]) Degraded() bool {
	return r.Value == nil && r.ShapeErr != nil
}

func shapeError(model string, err error) error {
	return &APIError{Class: ErrorClassShape, Message: model, Err: err}
}

func decodeSummary(body []byte) (*CrawlSummary, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, shapeError("crawl summary", fmt.Errorf("expected a JSON object"))
	}
	var summary CrawlSummary
	if err := json.Unmarshal(trimmed, &summary); err != nil {
		return nil, shapeError("crawl summary", err)
	}
	return &summary, nil
}

// decodeCrawlList accepts {"items": [...]} or a bare array of crawls.
func decodeCrawlList(body []byte) (*CrawlList, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, shapeError("crawl list", fmt.Errorf("empty body"))
	}

	switch trimmed[0] {
	case '[':
		var items []CrawlSummary
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, shapeError("crawl list", err)
		}
		return &CrawlList{Items: items}, nil
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, shapeError("crawl list", err)
		}
		if _, ok := fields["items"]; !ok {
			return nil, shapeError("crawl list", fmt.Errorf(`missing "items"`))
		}
		var list CrawlList
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, shapeError("crawl list", err)
		}
		return &list, nil
	default:
		return nil, shapeError("crawl list", fmt.Errorf("expected a JSON object or array"))
	}
}

// chunkBody is the wire shape of one chunk page.
type chunkBody struct {
	Chunk *ChunkMeta        `json:"chunk"`
	Items []json.RawMessage `json:"items"`
}

func decodeChunk(body []byte) (*chunkBody, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, shapeError("chunk page", fmt.Errorf("expected a JSON object"))
	}
	var page chunkBody
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, shapeError("chunk page", err)
	}
	return &page, nil
}

// decodeRaw decodes any JSON value, keeping numbers exact.
func decodeRaw(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
