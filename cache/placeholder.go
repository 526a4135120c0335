/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package cache

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"github.com/wisp-im/wisp/util/rand"
)

const (
	placeholderCells = 5
	placeholderScale = 16
)

// renderPlaceholder draws a 5x5 horizontally mirrored identicon whose
// bitmap and color derive from the seed alone, so the resulting bytes
// are stable across runs and machines.
func renderPlaceholder(seed string) ([]byte, error) {
	prng := rand.NewMulberry32String(seed)

	fg := color.NRGBA{
		R: uint8(64 + prng.Intn(128)),
		G: uint8(64 + prng.Intn(128)),
		B: uint8(64 + prng.Intn(128)),
		A: 0xff,
	}
	bg := color.NRGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}

	// left half plus center column, mirrored to the right
	var cells [placeholderCells][placeholderCells]bool
	half := placeholderCells/2 + 1
	for y := 0; y < placeholderCells; y++ {
		for x := 0; x < half; x++ {
			on := prng.Intn(2) == 1
			cells[y][x] = on
			cells[y][placeholderCells-1-x] = on
		}
	}

	side := placeholderCells * placeholderScale
	img := image.NewNRGBA(image.Rect(0, 0, side, side))
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			if cells[y/placeholderScale][x/placeholderScale] {
				img.SetNRGBA(x, y, fg)
			} else {
				img.SetNRGBA(x, y, bg)
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
