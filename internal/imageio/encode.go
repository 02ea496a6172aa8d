// Package imageio turns runtime images into the PNG payloads the server
// returns and persists.
package imageio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"strconv"
	"unicode/utf8"

	"golang.org/x/image/draw"

	"sdserver/pkg/types"
)

// InfoKeyword is the tEXt keyword carrying generation parameters.
const InfoKeyword = "GenerationInfo"

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// Normalize returns img unchanged when it already has an RGB(A) color model
// and an RGBA conversion otherwise.
func Normalize(img image.Image) image.Image {
	switch img.(type) {
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return img
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// EncodePNG normalizes and encodes img. When info is non-nil it is embedded
// as a GenerationInfo tEXt chunk.
func EncodePNG(img image.Image, info *types.GenerationInfo) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, Normalize(img)); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	if info == nil {
		return buf.Bytes(), nil
	}
	text, err := asciiJSON(info)
	if err != nil {
		return nil, err
	}
	return insertText(buf.Bytes(), InfoKeyword, text)
}

// EncodeBase64 is EncodePNG followed by standard base64.
func EncodeBase64(img image.Image, info *types.GenerationInfo) (string, []byte, error) {
	raw, err := EncodePNG(img, info)
	if err != nil {
		return "", nil, err
	}
	return base64.StdEncoding.EncodeToString(raw), raw, nil
}

// asciiJSON marshals v escaping every non-ASCII rune, since tEXt is Latin-1.
func asciiJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode generation info: %w", err)
	}
	var out bytes.Buffer
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		raw = raw[size:]
		switch {
		case r < utf8.RuneSelf:
			out.WriteByte(byte(r))
		case r > 0xFFFF:
			r -= 0x10000
			fmt.Fprintf(&out, `\u%04x\u%04x`, 0xD800+(r>>10), 0xDC00+(r&0x3FF))
		default:
			fmt.Fprintf(&out, `\u%04x`, r)
		}
	}
	return out.String(), nil
}

// insertText adds a tEXt chunk right after IHDR.
func insertText(data []byte, keyword, text string) ([]byte, error) {
	if !bytes.HasPrefix(data, pngSignature) || len(data) < len(pngSignature)+8 {
		return nil, errors.New("not a png stream")
	}
	if len(keyword) == 0 || len(keyword) > 79 {
		return nil, fmt.Errorf("invalid tEXt keyword %q", keyword)
	}
	ihdrLen := int(binary.BigEndian.Uint32(data[8:12]))
	end := len(pngSignature) + 8 + ihdrLen + 4
	if end > len(data) || string(data[12:16]) != "IHDR" {
		return nil, errors.New("png stream does not start with IHDR")
	}

	body := make([]byte, 0, len(keyword)+1+len(text))
	body = append(body, keyword...)
	body = append(body, 0)
	body = append(body, text...)

	chunk := make([]byte, 0, 12+len(body))
	chunk = binary.BigEndian.AppendUint32(chunk, uint32(len(body)))
	chunk = append(chunk, "tEXt"...)
	chunk = append(chunk, body...)
	chunk = binary.BigEndian.AppendUint32(chunk, crc32.ChecksumIEEE(chunk[4:]))

	out := make([]byte, 0, len(data)+len(chunk))
	out = append(out, data[:end]...)
	out = append(out, chunk...)
	out = append(out, data[end:]...)
	return out, nil
}

// ReadText returns the tEXt value stored under keyword, if any.
func ReadText(data []byte, keyword string) (string, bool) {
	if !bytes.HasPrefix(data, pngSignature) {
		return "", false
	}
	for off := len(pngSignature); off+8 <= len(data); {
		n := int(binary.BigEndian.Uint32(data[off : off+4]))
		typ := string(data[off+4 : off+8])
		start, stop := off+8, off+8+n
		if stop+4 > len(data) {
			return "", false
		}
		if typ == "tEXt" {
			body := data[start:stop]
			if i := bytes.IndexByte(body, 0); i >= 0 && string(body[:i]) == keyword {
				return string(body[i+1:]), true
			}
		}
		if typ == "IEND" {
			break
		}
		off = stop + 4
	}
	return "", false
}

// ReadInfo decodes the GenerationInfo chunk of a PNG.
func ReadInfo(data []byte) (types.GenerationInfo, error) {
	var info types.GenerationInfo
	text, ok := ReadText(data, InfoKeyword)
	if !ok {
		return info, errors.New("no " + strconv.Quote(InfoKeyword) + " chunk")
	}
	if err := json.Unmarshal([]byte(text), &info); err != nil {
		return info, fmt.Errorf("decode generation info: %w", err)
	}
	return info, nil
}
