package vitals

import (
	"image"
	"image/color"
)

// ROIFractions places a region inside a face box, as fractions of its width and height.
type ROIFractions struct {
	X, Y, W, H float64
}

var (
	// ForeheadPulse is the forehead band used for the green pulse signal.
	ForeheadPulse = ROIFractions{X: 0.25, Y: 0.15, W: 0.50, H: 0.20}
	// ForeheadOximetry is the wider, higher band used for red and blue.
	ForeheadOximetry = ROIFractions{X: 0.20, Y: 0.05, W: 0.60, H: 0.25}
)

// Rect derives the region from face and clips it to bounds.
// Offsets and sizes are truncated to whole pixels.
func (f ROIFractions) Rect(face, bounds image.Rectangle) image.Rectangle {
	w, h := face.Dx(), face.Dy()
	x0 := face.Min.X + int(f.X*float64(w))
	y0 := face.Min.Y + int(f.Y*float64(h))
	r := image.Rect(x0, y0, x0+int(f.W*float64(w)), y0+int(f.H*float64(h)))
	return r.Intersect(bounds)
}

// MeanRGB averages the 8-bit red, green and blue values over r.
// ok is false when r is empty.
func MeanRGB(img image.Image, r image.Rectangle) (red, green, blue float64, ok bool) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return 0, 0, 0, false
	}

	var sr, sg, sb uint64
	switch m := img.(type) {
	case *image.RGBA:
		sr, sg, sb = sumPix(m.Pix, m.Stride, m.PixOffset(r.Min.X, r.Min.Y), r.Dx(), r.Dy())
	case *image.NRGBA:
		sr, sg, sb = sumPix(m.Pix, m.Stride, m.PixOffset(r.Min.X, r.Min.Y), r.Dx(), r.Dy())
	default:
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				sr += uint64(c.R)
				sg += uint64(c.G)
				sb += uint64(c.B)
			}
		}
	}

	n := float64(r.Dx() * r.Dy())
	return float64(sr) / n, float64(sg) / n, float64(sb) / n, true
}

// sumPix sums interleaved 4-byte pixels row by row.
func sumPix(pix []uint8, stride, offset, w, h int) (sr, sg, sb uint64) {
	for y := range h {
		row := pix[offset+y*stride : offset+y*stride+4*w]
		for i := 0; i < len(row); i += 4 {
			sr += uint64(row[i])
			sg += uint64(row[i+1])
			sb += uint64(row[i+2])
		}
	}
	return sr, sg, sb
}

// regionFor returns the clipped region for a frame, or false when there is no face
// or the region is empty.
func regionFor(img image.Image, face *image.Rectangle, f ROIFractions) (image.Rectangle, bool) {
	if img == nil || face == nil {
		return image.Rectangle{}, false
	}
	r := f.Rect(face.Canon(), img.Bounds())
	return r, !r.Empty()
}
