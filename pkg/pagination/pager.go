package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/url"

	"github.com/audisto-mcp/audisto-mcp/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "audisto_pages_fetched_total",
	Help: "Total chunk pages fetched by the pager",
})

// ErrDone is returned by Next once the sequence is exhausted.
var ErrDone = errors.New("no more pages")

// ChunkFetcher is the interface the Audisto client implements for single-page fetching.
type ChunkFetcher interface {
	FetchChunk(ctx context.Context, req client.ChunkRequest) (*client.Page, error)
}

// Option configures a Pager.
type Option func(*Pager)

// WithEndpoint sets the path template reported in metrics, e.g. "/crawls/{id}/pages".
func WithEndpoint(template string) Option {
	return func(p *Pager) {
		p.endpoint = template
	}
}

// Pager walks a chunked endpoint one page at a time.
type Pager struct {
	fetcher  ChunkFetcher
	path     string
	endpoint string
	query    url.Values
	size     int

	next    int
	fetched int
	done    bool
	err     error
}

// New validates the chunk size and returns a pager positioned at chunk 0.
// No request is issued until the first call to Next.
func New(fetcher ChunkFetcher, path string, query url.Values, size int, opts ...Option) (*Pager, error) {
	if err := client.ValidateChunkSize(size); err != nil {
		return nil, err
	}
	p := &Pager{
		fetcher: fetcher,
		path:    path,
		query:   query,
		size:    size,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Next fetches the next page. It returns ErrDone once the sequence has ended
// and keeps returning the first request error after a failure.
func (p *Pager) Next(ctx context.Context) (*client.Page, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.done {
		return nil, ErrDone
	}

	page, err := p.fetcher.FetchChunk(ctx, client.ChunkRequest{
		Path:     p.path,
		Endpoint: p.endpoint,
		Query:    p.query,
		Chunk:    p.next,
		Size:     p.size,
	})
	if err != nil {
		p.err = err
		p.done = true
		return nil, err
	}
	pagesFetchedTotal.Inc()

	n := len(page.Records)
	p.next++
	p.fetched += n

	log.Debug().
		Str("path", p.path).
		Int("chunk", page.Index).
		Int("records", n).
		Int("fetched", p.fetched).
		Msg("Fetched chunk page")

	if n == 0 {
		p.done = true
		return nil, ErrDone
	}
	if n < p.size || (page.Total != nil && p.fetched >= *page.Total) {
		p.done = true
		log.Debug().
			Str("path", p.path).
			Int("records", p.fetched).
			Msg("Completed chunked iteration")
	}
	return page, nil
}

// Pages yields pages until the sequence ends. A request error is yielded
// once and ends the sequence.
func (p *Pager) Pages(ctx context.Context) iter.Seq2[*client.Page, error] {
	return func(yield func(*client.Page, error) bool) {
		for {
			page, err := p.Next(ctx)
			if errors.Is(err, ErrDone) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(page, nil) {
				return
			}
		}
	}
}

// Records yields individual records across pages.
func (p *Pager) Records(ctx context.Context) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		for page, err := range p.Pages(ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			for _, record := range page.Records {
				if !yield(record, nil) {
					return
				}
			}
		}
	}
}

// Fetched returns the number of records fetched so far.
func (p *Pager) Fetched() int {
	return p.fetched
}
