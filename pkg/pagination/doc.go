// Package pagination provides lazy, sequential iteration over Audisto's
// chunked endpoints.
//
// Chunked endpoints take a zero-based "chunk" index and a "chunksize" of at
// most 10,000 records and answer with the records plus optional metadata
// (total, page, size). Only one request per API key may be in flight, so
// pages are fetched one at a time, each only when the consumer asks for it.
//
// Example usage:
//
//	pager, err := pagination.New(audistoClient, "/crawls/42/pages", nil, 1000)
//	if err != nil {
//		return err // chunk size out of range, nothing was sent
//	}
//	for record, err := range pager.Records(ctx) {
//		if err != nil {
//			return err
//		}
//		handle(record)
//	}
//
// The sequence ends after an empty page, a page shorter than the chunk size,
// or once the reported total is reached. Any request error ends it too. A
// Pager is not restartable; create a new one to start over at chunk 0.
package pagination
