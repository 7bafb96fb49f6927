// Package raster decodes client supplied images into dense RGB pixel buffers.
package raster

import (
	"fmt"
	"image"
	"math/rand"
)

// Channels is the number of bytes per pixel in a Raster.
const Channels = 3

// Raster is a row-major RGB image with shape (Height, Width, 3).
type Raster struct {
	Width  int
	Height int
	Pix    []uint8
}

// New allocates a zeroed raster.
func New(width, height int) *Raster {
	return &Raster{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*Channels),
	}
}

// Shape returns the raster dimensions in (height, width, channels) order.
func (r *Raster) Shape() [3]int {
	return [3]int{r.Height, r.Width, Channels}
}

// String formats the shape like "(480, 640, 3)" for log lines.
func (r *Raster) String() string {
	return fmt.Sprintf("(%d, %d, %d)", r.Height, r.Width, Channels)
}

// At returns the RGB triple at column x, row y.
func (r *Raster) At(x, y int) (uint8, uint8, uint8) {
	i := (y*r.Width + x) * Channels
	return r.Pix[i], r.Pix[i+1], r.Pix[i+2]
}

// Image exposes the raster as an opaque image.NRGBA so it can be handed to encoders.
func (r *Raster) Image() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	for src, dst := 0, 0; src < len(r.Pix); src, dst = src+Channels, dst+4 {
		img.Pix[dst] = r.Pix[src]
		img.Pix[dst+1] = r.Pix[src+1]
		img.Pix[dst+2] = r.Pix[src+2]
		img.Pix[dst+3] = 0xff
	}
	return img
}

// Random fills a width x height raster with uniformly random bytes in [0, 255).
func Random(width, height int, rng *rand.Rand) *Raster {
	r := New(width, height)
	for i := range r.Pix {
		r.Pix[i] = uint8(rng.Intn(255))
	}
	return r
}
