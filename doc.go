// Package packstream provides a read-only caching layer over forward-only
// byte sources.
//
// A [Stream] wraps a [Source] whose reads are expensive and can only move
// forward, such as an HTTP response body, a decompressor, or a registry blob
// download. Bytes are pulled from the source only when a Read or Seek needs
// them and are kept in memory, so any range that was fetched once is served
// again without touching the source. When the cache holds the whole source
// the source is closed immediately rather than when the Stream is closed.
//
// Only absolute seeks (io.SeekStart) are supported. Seeking past the cached
// region fetches the gap; seeking past the end clamps to the end. End of data
// is reported the io way: short reads, io.EOF, and a clamped seek offset.
//
// # Sources
//
// Adapters live in subpackages:
//   - [github.com/meigma/packstream/http]: streams an HTTP URL
//   - [github.com/meigma/packstream/compress]: zstd and lz4 decompression
//   - [github.com/meigma/packstream/oci]: OCI registry blobs with digest verification
//   - [github.com/meigma/packstream/s3]: S3 objects
//
// Local files and arbitrary readers are covered by [OpenFile] and
// [NewReaderSource].
//
// # Concurrency
//
// A Stream is meant for one reader at a time and carries no lock. Wrap it in
// a [ReaderAt] to share it between goroutines, or use a [Group] to share one
// lazily opened stream per key.
package packstream
