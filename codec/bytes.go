package codec

// BytesCodec is the identity Codec: payloads are already []byte.
type BytesCodec struct{}

func (BytesCodec) Encode(v []byte) ([]byte, error) { return v, nil }

func (BytesCodec) Decode(b []byte) ([]byte, error) { return b, nil }

func (BytesCodec) Cost(v []byte) int64 { return int64(len(v)) }

func (BytesCodec) FileKind() string { return "bin" }
