// Package source produces candidate numbers for the pipeline, either by
// enumerating the space left free by a prefix/suffix or by scanning rows of
// an uploaded file.
package source

// Source yields candidates in encounter order.
//
// NextBatch appends at most max candidates to dst and returns the extended
// slice. Like io.Reader, it may return candidates together with a non-nil
// error; callers must consume the candidates before handling the error.
// io.EOF signals normal exhaustion. Any other error is terminal.
type Source interface {
	NextBatch(dst []string, max int) ([]string, error)

	// Progress reports consumed units and the total, -1 when unknown.
	Progress() (done, total int64)

	Close() error
}
