package imageio

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sdserver/pkg/types"
)

func TestNormalize(t *testing.T) {
	gray := image.NewGray(image.Rect(2, 3, 6, 7))
	gray.SetGray(2, 3, color.Gray{Y: 200})
	out := Normalize(gray)
	nrgba, ok := out.(*image.NRGBA)
	if !ok {
		t.Fatalf("gray converted to %T", out)
	}
	if b := nrgba.Bounds(); b.Dx() != 4 || b.Dy() != 4 || b.Min != (image.Point{}) {
		t.Fatalf("bounds = %v", b)
	}
	if c := nrgba.NRGBAAt(0, 0); c.R != 200 || c.A != 255 {
		t.Fatalf("pixel = %+v", c)
	}

	rgba := image.NewRGBA(image.Rect(0, 0, 1, 1))
	if Normalize(rgba) != image.Image(rgba) {
		t.Fatalf("RGBA should pass through")
	}
	pal := image.NewPaletted(image.Rect(0, 0, 1, 1), color.Palette{color.Black})
	if _, ok := Normalize(pal).(*image.NRGBA); !ok {
		t.Fatalf("paletted not converted")
	}
}

func TestEncodePNG_WithInfoRoundTrip(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	info := &types.GenerationInfo{
		PositivePrompt: "a café at night ☕",
		NegativePrompt: "blurry",
		Width:          1024, Height: 768,
		Model:    "~/m/sdxl.safetensors",
		Sampler:  "ddim",
		Seed:     42,
		Steps:    20,
		CFGScale: 7.5,
	}
	raw, err := EncodePNG(img, info)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("png with tEXt chunk failed to decode: %v", err)
	}
	if decoded.Bounds().Dx() != 3 {
		t.Fatalf("bounds = %v", decoded.Bounds())
	}
	text, ok := ReadText(raw, InfoKeyword)
	if !ok {
		t.Fatalf("chunk missing")
	}
	for _, b := range []byte(text) {
		if b >= 0x80 {
			t.Fatalf("tEXt value is not ASCII: %q", text)
		}
	}
	for _, k := range []string{"positive_prompt", "negative_prompt", "width", "height", "model", "sampler", "seed", "steps", "cfg_scale"} {
		if !strings.Contains(text, `"`+k+`"`) {
			t.Errorf("key %q missing from %s", k, text)
		}
	}
	got, err := ReadInfo(raw)
	if err != nil {
		t.Fatal(err)
	}
	if got != *info {
		t.Fatalf("info = %+v, want %+v", got, *info)
	}
}

func TestEncodeBase64_NoInfo(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	s, raw, err := EncodeBase64(img, nil)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := base64.StdEncoding.DecodeString(s)
	if err != nil || !bytes.Equal(dec, raw) {
		t.Fatalf("base64 mismatch: %v", err)
	}
	if _, ok := ReadText(raw, InfoKeyword); ok {
		t.Fatalf("unexpected chunk")
	}
}

func TestInsertText_RejectsGarbage(t *testing.T) {
	if _, err := insertText([]byte("nope"), InfoKeyword, "x"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDirStore(t *testing.T) {
	root := t.TempDir()
	d := NewDirStore(root)
	rel := ObjectPath(time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC))
	if !strings.HasPrefix(rel, "20240309"+string(filepath.Separator)) || filepath.Ext(rel) != ".png" {
		t.Fatalf("path = %q", rel)
	}
	full, err := d.SaveFile(context.Background(), []byte("png"), rel, "image/png")
	if err != nil {
		t.Fatal(err)
	}
	if full != filepath.Join(root, rel) {
		t.Fatalf("full = %q", full)
	}
	b, err := os.ReadFile(full)
	if err != nil || string(b) != "png" {
		t.Fatalf("read back %q %v", b, err)
	}
	// Traversal stays under root.
	full, err = d.SaveFile(context.Background(), []byte("x"), "../../escape.png", "image/png")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(full, root) {
		t.Fatalf("escaped root: %q", full)
	}
}
