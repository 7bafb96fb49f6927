package raster

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"strings"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

var (
	// ErrEmpty is returned when the payload decodes to zero bytes.
	ErrEmpty = errors.New("empty image payload")
	// ErrBase64 is returned when the payload is not valid base64.
	ErrBase64 = errors.New("invalid base64 data")
	// ErrFormat is returned when the bytes are not a supported image.
	ErrFormat = errors.New("cannot identify image file")
)

const dataURLPrefix = "data:"

// StripDataURL drops a "data:<mime>;base64," header, keeping everything after the first comma.
func StripDataURL(s string) string {
	if !strings.HasPrefix(s, dataURLPrefix) {
		return s
	}
	if i := strings.IndexByte(s, ','); i >= 0 {
		return s[i+1:]
	}
	return s
}

// DecodeBase64 turns a base64 string, optionally carrying a data URL header, into an RGB raster.
func DecodeBase64(s string) (*Raster, error) {
	data, err := decodeBase64Payload(StripDataURL(s))
	if err != nil {
		return nil, err
	}
	return DecodeBytes(data)
}

func decodeBase64Payload(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			return -1
		}
		return r
	}, s)

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// URL-safe alphabet shows up from some browser clients
		var urlErr error
		if data, urlErr = base64.URLEncoding.DecodeString(s); urlErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrBase64, err)
		}
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	return data, nil
}

// DecodeBytes decodes encoded image bytes and converts them to RGB.
func DecodeBytes(data []byte) (*Raster, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return FromImage(img), nil
}

// FromImage converts any image to an RGB raster. Alpha is discarded without compositing.
func FromImage(img image.Image) *Raster {
	b := img.Bounds()
	r := New(b.Dx(), b.Dy())

	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < r.Height; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			dst := r.Pix[y*r.Width*Channels:]
			for x := 0; x < r.Width; x++ {
				dst[x*3] = row[x*4]
				dst[x*3+1] = row[x*4+1]
				dst[x*3+2] = row[x*4+2]
			}
		}
	case *image.Gray:
		for y := 0; y < r.Height; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			dst := r.Pix[y*r.Width*Channels:]
			for x := 0; x < r.Width; x++ {
				dst[x*3], dst[x*3+1], dst[x*3+2] = row[x], row[x], row[x]
			}
		}
	default:
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				r.Pix[i], r.Pix[i+1], r.Pix[i+2] = c.R, c.G, c.B
				i += Channels
			}
		}
	}
	return r
}
