package bddconv

// Object crop export.

import (
	"fmt"
	"image"
	"log"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// objectRect returns the rounded bounding box of a, clipped to bounds.
func objectRect(a Annotation, bounds image.Rectangle) image.Rectangle {
	r := image.Rect(roundCoord(a.Coords[0]), roundCoord(a.Coords[1]),
		roundCoord(a.Coords[2]), roundCoord(a.Coords[3]))
	return r.Intersect(bounds)
}

// cropObjectsFromImage returns a crop of img for each annotation with a bounding box that is at
// least partially contained in img, along with the file name for each crop.
//
// The file names are derived from f.FilePath, with a "_xx" suffix appended before the file
// extension, where xx is the index in f.Annotations.
func (f *AnnotatedFile) cropObjectsFromImage(img image.Image) ([]image.Image, []string, error) {
	_, baseNoExt, ext, err := splitPath(f.FilePath)
	if err != nil {
		return nil, nil, err
	}

	crops := make([]image.Image, 0, len(f.Annotations))
	names := make([]string, 0, len(f.Annotations))
	bounds := img.Bounds()

	for i, a := range f.Annotations {
		r := objectRect(a, bounds)
		if r.Empty() {
			continue
		}

		crops = append(crops, imaging.Crop(img, r))
		names = append(names, fmt.Sprintf("%s_%02d.%s", baseNoExt, i, ext))
	}

	return crops, names, nil
}

// CropObjects crops every annotated object from its image in imageDir and saves the crops to
// outDir, which is created if necessary. Images that cannot be loaded are logged and skipped.
//
// Returns the number of crops written.
func CropObjects(data []AnnotatedFile, imageDir, outDir string, jpegQuality int) (int, error) {
	if err := ensureDir(outDir); err != nil {
		return 0, err
	}

	count := 0
	for _, f := range AnnotatedFiles(data).NonEmpty() {
		imagePath := filepath.Join(imageDir, f.FilePath)
		img, err := loadImage(imagePath)
		if err != nil {
			log.Printf("Cannot load image, skipping %q: %v", imagePath, err)
			continue
		}

		crops, names, err := f.cropObjectsFromImage(img)
		if err != nil {
			return count, err
		}
		for i, crop := range crops {
			outPath := filepath.Join(outDir, names[i])
			if err := saveImage(outPath, crop, jpegQuality); err != nil {
				return count, fmt.Errorf("cannot save crop %q: %w", outPath, err)
			}
			count++
		}
	}

	log.Printf("Cropped %d objects to %s", count, outDir)
	return count, nil
}
