// Package codec defines the external Codec contract that tiercache
// uses to turn payload values into bytes (and back), and ships a
// handful of reference implementations, per the "codable by default"
// design note: a bytes codec, a structured-value (JSON) codec, and an
// image codec keyed by decoded pixel count.
package codec

// Codec converts values of type V to and from bytes, and reports the
// self-described cost (in bytes occupied in memory) and file-kind tag
// (used to pick a disk filename extension) for a value. Codecs are
// supplied per-cache; tiercache never registers one globally.
type Codec[V any] interface {
	// Encode converts v to its byte representation.
	Encode(v V) ([]byte, error)
	// Decode reconstructs a value from bytes previously produced by
	// Encode.
	Decode(b []byte) (V, error)
	// Cost reports the number of bytes v should count as occupying in
	// a cost-bounded tier. Must be non-zero for any non-trivial value.
	Cost(v V) int64
	// FileKind returns the stable tag used to pick a filename
	// extension for entries of this payload type.
	FileKind() string
}
