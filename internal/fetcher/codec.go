package fetcher

import (
	"encoding/binary"
	"errors"
	"image"
)

// Cached pixels are stored raw so a hit costs no image decoding:
//
//	magic(4) | width(4) | height(4) | NRGBA pixels, row-major, no padding
const (
	pixelMagic      = "NRGB"
	pixelHeaderSize = 12
)

var errBadPixels = errors.New("malformed cached pixels")

func encodePixels(img *image.NRGBA) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	buf := make([]byte, pixelHeaderSize+w*h*4)
	copy(buf[0:4], pixelMagic)
	binary.BigEndian.PutUint32(buf[4:8], uint32(w))
	binary.BigEndian.PutUint32(buf[8:12], uint32(h))
	out := buf[pixelHeaderSize:]
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		copy(out[y*w*4:], row)
	}
	return buf
}

func decodePixels(buf []byte) (*image.NRGBA, error) {
	if len(buf) < pixelHeaderSize || string(buf[0:4]) != pixelMagic {
		return nil, errBadPixels
	}
	w := int(binary.BigEndian.Uint32(buf[4:8]))
	h := int(binary.BigEndian.Uint32(buf[8:12]))
	n := len(buf) - pixelHeaderSize
	// Bound w against the payload before multiplying so a forged header
	// cannot overflow w*h*4.
	if w <= 0 || h <= 0 || w > n/4/h || n != w*h*4 {
		return nil, errBadPixels
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, buf[pixelHeaderSize:])
	return img, nil
}
