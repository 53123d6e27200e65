package platform

import "context"

// Iterator is a lazy, finite sequence of find matches, transparently
// following continuation cursors. It is a single forward pass: a consumed
// page is never re-requested, and re-running the query means building a
// new iterator with Find.
//
// Iterators are not safe for concurrent use.
type Iterator struct {
	client  FindClient
	query   FindQuery
	metrics Metrics

	cursor  *Cursor
	buf     []Metadata
	pos     int
	started bool
	done    bool
}

// Find starts a query against the client. No page is fetched until the
// first Next call.
func Find(client FindClient, q FindQuery) *Iterator {
	return newIterator(client, q, nil)
}

func newIterator(client FindClient, q FindQuery, metrics Metrics) *Iterator {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Iterator{client: client, query: q, metrics: metrics}
}

// Next returns the next match. The second return is false once the
// sequence is exhausted.
func (it *Iterator) Next(ctx context.Context) (Metadata, bool, error) {
	for it.pos >= len(it.buf) {
		if it.done {
			return Metadata{}, false, nil
		}
		if err := it.fetch(ctx); err != nil {
			return Metadata{}, false, err
		}
	}
	md := it.buf[it.pos]
	it.pos++
	return md, true, nil
}

// All drains the remaining sequence into a slice.
func (it *Iterator) All(ctx context.Context) ([]Metadata, error) {
	var out []Metadata
	for {
		md, ok, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, md)
	}
}

// fetch retrieves the next page. Each page request carries the same
// constraint set plus the prior page's cursor; a nil returned cursor marks
// the final page.
func (it *Iterator) fetch(ctx context.Context) error {
	if it.started && it.cursor == nil {
		it.done = true
		return nil
	}

	matches, next, err := it.client.Find(ctx, it.query, it.cursor)
	if err != nil {
		return err
	}
	it.metrics.FindPage(len(matches))

	it.started = true
	it.buf = matches
	it.pos = 0
	it.cursor = next
	if next == nil {
		it.done = true
	}
	return nil
}
