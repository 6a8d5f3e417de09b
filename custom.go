package bddconv

// Custom flat-file bounding box format specific functionality.
//
// Each label file holds one line per object in the form of a brace-delimited tuple,
//
//	{xmin, ymin, xmax, ymax, "label"},
//
// ready to be pasted into an array literal of the training pipeline.

import (
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// CustomAnnotation is a single annotation within a custom label file.
type CustomAnnotation struct {
	XMin, YMin, XMax, YMax int // Rounded pixel coordinates.
	Label                  string
	ClassID                int // Not part of the serialised line.
}

// Width is the box width in pixels.
func (a CustomAnnotation) Width() int {
	return a.XMax - a.XMin
}

// Height is the box height in pixels.
func (a CustomAnnotation) Height() int {
	return a.YMax - a.YMin
}

// String formats a as a single line without a line break. The label is not escaped.
func (a CustomAnnotation) String() string {
	return fmt.Sprintf("{%d, %d, %d, %d, \"%s\"},", a.XMin, a.YMin, a.XMax, a.YMax, a.Label)
}

// CustomAnnotatedFile defines the custom annotation structure for a single image.
type CustomAnnotatedFile struct {
	Annotations []CustomAnnotation
	FilePath    string // The image identifier.
}

// LabelFileName returns the name of the label file for f, the image identifier with its
// extension replaced by ".txt".
func (f CustomAnnotatedFile) LabelFileName() string {
	return strings.TrimSuffix(f.FilePath, filepath.Ext(f.FilePath)) + ".txt"
}

// roundCoord rounds half to even, so 0.5 becomes 0 and 1.5 becomes 2.
func roundCoord(v float64) int {
	return int(math.RoundToEven(v))
}

// ToCustom converts the intermediate representation to the custom format. Files without
// annotations are kept so that WriteCustom can report them.
func ToCustom(data []AnnotatedFile) []CustomAnnotatedFile {
	customData := make([]CustomAnnotatedFile, 0, len(data))
	for _, fileData := range data {
		customFileData := CustomAnnotatedFile{
			Annotations: make([]CustomAnnotation, len(fileData.Annotations)),
			FilePath:    fileData.FilePath,
		}
		for i, a := range fileData.Annotations {
			customFileData.Annotations[i] = CustomAnnotation{
				XMin:    roundCoord(a.Coords[0]),
				YMin:    roundCoord(a.Coords[1]),
				XMax:    roundCoord(a.Coords[2]),
				YMax:    roundCoord(a.Coords[3]),
				Label:   a.Label,
				ClassID: a.ClassID,
			}
		}
		customData = append(customData, customFileData)
	}

	return customData
}

// FormatCustom serialises the annotations, one per line, without a trailing line break.
func FormatCustom(annotations []CustomAnnotation) string {
	lines := make([]string, len(annotations))
	for i, a := range annotations {
		lines[i] = a.String()
	}
	return strings.Join(lines, "\n")
}

// WriteCustom writes data to dirPath, one file per element with at least one annotation. The
// directory and its parents are created if they do not exist.
func WriteCustom(dirPath string, data []CustomAnnotatedFile) error {
	if err := ensureDir(dirPath); err != nil {
		return err
	}

	for _, fileData := range data {
		if len(fileData.Annotations) > 0 {
			filePath := filepath.Join(dirPath, fileData.LabelFileName())
			content := FormatCustom(fileData.Annotations)
			if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
				return fmt.Errorf("cannot write file %q: %w", filePath, err)
			}
		}

		log.Print("Processed ", fileData.FilePath)
	}

	return nil
}

// ReadCustom reads and parses the custom label file at path.
func ReadCustom(path string) ([]CustomAnnotation, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}

	annotations := make([]CustomAnnotation, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		a, err := parseCustomAnnotation(line)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q: %w", path, err)
		}
		annotations = append(annotations, a)
	}

	return annotations, nil
}

// parseCustomAnnotation parses the line of values for a single annotation. The class ID is not
// part of the line and stays zero.
func parseCustomAnnotation(line string) (CustomAnnotation, error) {
	a := CustomAnnotation{}

	if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "},") {
		return a, fmt.Errorf("malformed line %q", line)
	}
	tokens := strings.SplitN(line[1:len(line)-2], ", ", 5)
	if len(tokens) < 5 {
		return a, fmt.Errorf("insufficient tokens in %q", line)
	}

	coords := []*int{&a.XMin, &a.YMin, &a.XMax, &a.YMax}
	for i, c := range coords {
		if _, err := fmt.Sscan(tokens[i], c); err != nil {
			return a, fmt.Errorf("unexpected values in %q: %w", line, err)
		}
	}

	label := tokens[4]
	if len(label) < 2 || label[0] != '"' || label[len(label)-1] != '"' {
		return a, fmt.Errorf("unquoted label in %q", line)
	}
	a.Label = label[1 : len(label)-1]

	return a, nil
}
