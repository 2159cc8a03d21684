package codec

import (
	"image"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type widget struct {
	Name  string
	Count int
	Tags  []string
}

func TestJSONCodecRoundTrip(t *testing.T) {
	c := JSONCodec[widget]{}
	want := widget{Name: "bolt", Count: 3, Tags: []string{"m4", "steel"}}

	data, err := c.Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	if c.FileKind() != "json" {
		t.Fatalf("FileKind: expected %q, got %q", "json", c.FileKind())
	}
}

func TestBytesCodecRoundTrip(t *testing.T) {
	c := BytesCodec{}
	want := []byte("payload")

	data, err := c.Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if diff := cmp.Diff(want, data); diff != "" {
		t.Fatalf("Encode mismatch (-want +got):\n%s", diff)
	}
	if got := c.Cost(want); got != int64(len(want)) {
		t.Fatalf("Cost: expected %d, got %d", len(want), got)
	}
}

func TestImageCodecRoundTrip(t *testing.T) {
	c := ImageCodec{}
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}

	data, err := c.Encode(img)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if got := c.Cost(img); got != 4*3*4 {
		t.Fatalf("Cost: expected %d, got %d", 4*3*4, got)
	}

	decoded, err := c.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Fatalf("Decode: bounds mismatch, got %v want %v", decoded.Bounds(), img.Bounds())
	}
}
