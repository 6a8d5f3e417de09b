package bddconv

// BDD100K specific functionality.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ImageExt is the file extension of the images that BDD100K label files describe.
const ImageExt = ".jpg"

// BDDBox2D is an axis-aligned bounding box given by its corners (x1,y1) and (x2,y2) in pixels.
type BDDBox2D struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// BDDObject is a single labelled object in a BDD100K frame. Objects without a Box2D, such as
// lane markings and drivable areas, carry their geometry in Poly2D instead.
type BDDObject struct {
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	Box2D      *BDDBox2D              `json:"box2d,omitempty"`
	Category   string                 `json:"category"`
	ID         int64                  `json:"id,omitempty"`
	Poly2D     json.RawMessage        `json:"poly2d,omitempty"`
}

// BDDFrame is one labelled sample of a BDD100K label file.
type BDDFrame struct {
	Objects   []BDDObject `json:"objects"`
	Timestamp int64       `json:"timestamp,omitempty"`
}

// BDDLabelFile defines the BDD100K annotation structure of a single label file.
type BDDLabelFile struct {
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	Frames     []BDDFrame             `json:"frames"`
	Name       string                 `json:"name"`
}

// ParseError is returned when a label file is not valid JSON or lacks the required top-level keys.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse BDD100K input from %q: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// errMissingKey reports a required top-level key that is absent or null.
type errMissingKey string

func (k errMissingKey) Error() string {
	return fmt.Sprintf("missing required key %q", string(k))
}

// LoadBDD100K reads and parses the BDD100K label file at path.
//
// If the file does not exist, errors.Is(err, os.ErrNotExist) holds for the returned error. Invalid
// JSON and missing "name" or "frames" keys are reported as *ParseError.
func LoadBDD100K(path string) (BDDLabelFile, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		return BDDLabelFile{}, fmt.Errorf("cannot read file %q: %w", path, err)
	}

	// Pointers detect the presence of the required keys.
	var raw struct {
		Attributes map[string]interface{} `json:"attributes"`
		Frames     *[]BDDFrame            `json:"frames"`
		Name       *string                `json:"name"`
	}
	if err := json.Unmarshal(enc, &raw); err != nil {
		return BDDLabelFile{}, &ParseError{Path: path, Err: err}
	}
	if raw.Name == nil {
		return BDDLabelFile{}, &ParseError{Path: path, Err: errMissingKey("name")}
	}
	if raw.Frames == nil {
		return BDDLabelFile{}, &ParseError{Path: path, Err: errMissingKey("frames")}
	}

	return BDDLabelFile{Attributes: raw.Attributes, Frames: *raw.Frames, Name: *raw.Name}, nil
}

// IsParseError reports whether err was caused by malformed input.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// ConvertOptions controls the conversion of BDD100K documents.
type ConvertOptions struct {
	// PerFrameNames gives every frame of a multi-frame document its own image identifier,
	// "<name>_<frame index>". By default all frames share the document name, so later frames
	// overwrite the output of earlier ones.
	PerFrameNames bool
}

// imageIdentifier returns the image identifier for frame i of doc.
func (opts ConvertOptions) imageIdentifier(doc BDDLabelFile, i int) string {
	if opts.PerFrameNames && len(doc.Frames) > 1 {
		return fmt.Sprintf("%s_%02d%s", doc.Name, i, ImageExt)
	}
	return doc.Name + ImageExt
}

// Convert converts doc to the intermediate representation, one AnnotatedFile per frame.
//
// Objects without a bounding box and objects whose category is not in mapping are skipped. Frames
// without any remaining annotations are returned with an empty annotation list.
func Convert(doc BDDLabelFile, mapping ClassMapping, opts ConvertOptions) (
	AnnotatedFiles, ConversionStats) {

	var stats ConversionStats
	data := make(AnnotatedFiles, 0, len(doc.Frames))
	for i, frame := range doc.Frames {
		stats.Frames++
		fileData := AnnotatedFile{
			Annotations: make([]Annotation, 0, len(frame.Objects)),
			FilePath:    opts.imageIdentifier(doc, i),
		}

		for _, o := range frame.Objects {
			stats.Objects++
			if o.Box2D == nil {
				stats.MissingBox2D++
				continue
			}
			classID, ok := mapping.Lookup(o.Category)
			if !ok {
				stats.Unmapped++
				continue
			}

			fileData.Annotations = append(fileData.Annotations, Annotation{
				ClassID: classID,
				Coords:  [4]float64{o.Box2D.X1, o.Box2D.Y1, o.Box2D.X2, o.Box2D.Y2},
				Label:   o.Category,
			})
			stats.Kept++
		}

		data = append(data, fileData)
	}

	return data, stats
}

// FromBDD100K reads the BDD100K label file at path and converts it to the intermediate
// representation using mapping.
func FromBDD100K(path string, mapping ClassMapping, opts ConvertOptions) (
	AnnotatedFiles, ConversionStats, error) {

	doc, err := LoadBDD100K(path)
	if err != nil {
		return nil, ConversionStats{}, err
	}

	data, stats := Convert(doc, mapping, opts)
	return data, stats, nil
}

// ConvertFile converts the BDD100K label file at jsonPath into custom annotation files in outDir,
// creating outDir if necessary.
func ConvertFile(jsonPath, outDir string, mapping ClassMapping) error {
	data, _, err := FromBDD100K(jsonPath, mapping, ConvertOptions{})
	if err != nil {
		return err
	}

	return WriteCustom(outDir, ToCustom(data))
}
