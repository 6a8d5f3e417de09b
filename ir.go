package bddconv

// The intermediate annotation metadata representation.

import (
	"fmt"
	"log"
)

// Annotation is the intermediate representation of an object label.
type Annotation struct {
	ClassID int        // The class ID from the ClassMapping.
	Coords  [4]float64 // Absolute x1, y1, x2, y2 offsets from the top-left corner.
	Label   string     // The original category.
}

// Width is the object width from a.Coords.
func (a Annotation) Width() float64 {
	return a.Coords[2] - a.Coords[0]
}

// Height is the object height from a.Coords.
func (a Annotation) Height() float64 {
	return a.Coords[3] - a.Coords[1]
}

// AnnotatedFile is the intermediate representation of the labels of one image. FilePath is the
// image identifier, e.g. "cb4614bc-47577a9a.jpg".
type AnnotatedFile struct {
	Annotations []Annotation // The annotations.
	FilePath    string       // The annotated image.
}

// AnnotatedFiles is the annotation metadata for a list of images.
type AnnotatedFiles []AnnotatedFile

// NonEmpty returns the files with at least one annotation, in order.
func (data AnnotatedFiles) NonEmpty() AnnotatedFiles {
	out := make(AnnotatedFiles, 0, len(data))
	for _, f := range data {
		if len(f.Annotations) > 0 {
			out = append(out, f)
		}
	}
	return out
}

// NumAnnotations is the total number of annotations across all files.
func (data AnnotatedFiles) NumAnnotations() int {
	n := 0
	for _, f := range data {
		n += len(f.Annotations)
	}
	return n
}

// ConversionStats counts what happened to the objects of a BDD100K document.
type ConversionStats struct {
	Frames       int // Frames visited.
	Objects      int // Objects visited.
	Kept         int // Objects converted to annotations.
	MissingBox2D int // Objects skipped because they have no box2d.
	Unmapped     int // Objects skipped because their category is not in the class mapping.
}

// Skipped is the number of objects that were dropped.
func (s ConversionStats) Skipped() int {
	return s.MissingBox2D + s.Unmapped
}

func (s ConversionStats) String() string {
	return fmt.Sprintf("%d frames, %d objects: kept %d, skipped %d without box2d and %d unmapped",
		s.Frames, s.Objects, s.Kept, s.MissingBox2D, s.Unmapped)
}

// Log prints the stats.
func (s ConversionStats) Log() {
	log.Print("Conversion summary: ", s)
}
