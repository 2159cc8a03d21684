package codec

import (
	"bytes"
	"image"
	"image/png"
)

// ImageCodec treats payloads as decoded bitmaps: cost is the pixel
// count times 4 (one word per RGBA pixel), regardless of the blob's
// on-disk encoding. Decode accepts any format with a decoder
// registered via image.RegisterFormat; this package only registers
// PNG, since it needs some format to encode to. Callers who want
// JPEG/GIF/etc. blobs decoded should blank-import those packages
// themselves.
type ImageCodec struct{}

func (ImageCodec) Encode(v image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (ImageCodec) Decode(b []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(b))
	return img, err
}

func (ImageCodec) Cost(v image.Image) int64 {
	if v == nil {
		return 0
	}
	bounds := v.Bounds()
	return int64(bounds.Dx()) * int64(bounds.Dy()) * 4
}

func (ImageCodec) FileKind() string { return "png" }
