package codec

import "encoding/json"

// JSONCodec is the default structured-value codec: any value with a
// JSON-marshalable shape is cacheable for free. time.Time fields
// round-trip as RFC 3339 strings, since that's what encoding/json
// already does.
type JSONCodec[V any] struct{}

func (JSONCodec[V]) Encode(v V) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}

func (JSONCodec[V]) Cost(v V) int64 {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return int64(len(b))
}

func (JSONCodec[V]) FileKind() string { return "json" }
