package bddconv

// Monocular distance estimation from bounding box heights.

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const inch = 0.39 // Inches per centimetre.

// RefSize is the typical real-world size of an object class, in inches.
type RefSize struct {
	Height float64
	Width  float64
}

// RefSizes holds the reference sizes of the classes whose distance can be estimated.
var RefSizes = map[string]RefSize{
	"person":    {Height: 160 * inch, Width: 50 * inch},
	"bicycle":   {Height: 100 * inch, Width: 65 * inch},
	"motorbike": {Height: 100 * inch, Width: 100 * inch},
	"car":       {Height: 150 * inch, Width: 180 * inch},
	"bus":       {Height: 320 * inch, Width: 250 * inch},
	"truck":     {Height: 345 * inch, Width: 250 * inch},
}

// UnknownDistance marks a point whose distance cannot be estimated.
const UnknownDistance = -1.0

// DistancePoint is the ground contact point of an object with its estimated distance in metres.
type DistancePoint struct {
	X, Y     int
	Distance float64
	Label    string
}

// Text is the overlay text for p.
func (p DistancePoint) Text() string {
	if p.Distance < 0 {
		return "unknown m"
	}
	return fmt.Sprintf("%f m", p.Distance)
}

// DistanceConfig controls distance estimation and the overlay images.
type DistanceConfig struct {
	Labels      []string // The labels to measure.
	FocalLength int      // The camera focal length in pixels.
	MaxY        int      // Boxes whose bottom edge is below this row are not measured.
	JPEGQuality int
}

// DefaultDistanceConfig returns the settings for the BDD100K dash camera.
func DefaultDistanceConfig() DistanceConfig {
	return DistanceConfig{
		Labels:      []string{"person", "bicycle", "car", "motorbike", "bus", "truck"},
		FocalLength: 400,
		MaxY:        650,
		JPEGQuality: 90,
	}
}

// MeasureDistances estimates the distance of every annotation whose label is in labels and whose
// bottom edge is at or above row maxY. The point is the centre of the bottom edge of the box.
//
// Labels without a RefSizes entry and boxes without height get UnknownDistance.
func MeasureDistances(annotations []CustomAnnotation, labels []string, focalLength, maxY int) (
	[]DistancePoint) {
	wanted := make(map[string]bool, len(labels))
	for _, l := range labels {
		wanted[l] = true
	}

	var points []DistancePoint
	for _, a := range annotations {
		if !wanted[a.Label] || a.YMax > maxY {
			continue
		}

		p := DistancePoint{
			X:        (a.XMin + a.XMax) / 2,
			Y:        a.YMax,
			Distance: UnknownDistance,
			Label:    a.Label,
		}
		ref, ok := RefSizes[a.Label]
		if h := a.Height(); ok && h > 0 {
			inches := ref.Height * float64(focalLength) / float64(h)
			p.Distance = inches / 12 * 0.3048
		}
		points = append(points, p)
	}

	return points
}

// DrawDistances returns a copy of img with a dot at every point and its distance text below it.
func DrawDistances(img image.Image, points []DistancePoint) *image.NRGBA {
	dst := imaging.Clone(img)
	white := image.NewUniform(color.White)
	face := basicfont.Face7x13

	for _, p := range points {
		drawDot(dst, p.X, p.Y, 4, white)

		text := p.Text()
		d := &font.Drawer{Dst: dst, Src: white, Face: face}
		width := d.MeasureString(text).Ceil()
		height := face.Metrics().Ascent.Ceil()
		d.Dot = fixed.P(p.X-width/2, p.Y+height)
		d.DrawString(text)
	}

	return dst
}

// drawDot fills a disc of radius r centred at (x, y).
func drawDot(dst draw.Image, x, y, r int, src image.Image) {
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy > r*r {
				continue
			}
			pt := image.Pt(x+dx, y+dy)
			if pt.In(dst.Bounds()) {
				dst.Set(pt.X, pt.Y, src.At(pt.X, pt.Y))
			}
		}
	}
}

// processedImageName returns "<stem>_processed<ext>" for the image identifier.
func processedImageName(identifier string) string {
	base := filepath.Base(identifier)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "_processed" + ext
}

// WriteDistanceOverlays estimates distances from the custom label files in labelDir and draws them
// on the matching images from imageDir. The results are saved to outDir, which is created if
// necessary, as "<stem>_processed<ext>". Identifiers without a label file or image are logged and
// skipped.
//
// Returns the number of images written.
func WriteDistanceOverlays(labelDir, imageDir, outDir string, identifiers []string,
	cfg DistanceConfig) (int, error) {

	if err := ensureDir(outDir); err != nil {
		return 0, err
	}

	count := 0
	seen := make(map[string]bool, len(identifiers))
	for _, id := range identifiers {
		if seen[id] {
			continue
		}
		seen[id] = true

		labelPath := filepath.Join(labelDir, CustomAnnotatedFile{FilePath: id}.LabelFileName())
		annotations, err := ReadCustom(labelPath)
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("No label file, skipping %q", id)
			continue
		} else if err != nil {
			return count, err
		}

		points := MeasureDistances(annotations, cfg.Labels, cfg.FocalLength, cfg.MaxY)

		imagePath := filepath.Join(imageDir, id)
		img, err := loadImage(imagePath)
		if err != nil {
			log.Printf("Cannot load image, skipping %q: %v", imagePath, err)
			continue
		}

		outPath := filepath.Join(outDir, processedImageName(id))
		if err := saveImage(outPath, DrawDistances(img, points), cfg.JPEGQuality); err != nil {
			return count, fmt.Errorf("cannot save %q: %w", outPath, err)
		}
		log.Printf("Measured %d objects in %s", len(points), outPath)
		count++
	}

	return count, nil
}

