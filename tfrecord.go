package bddconv

// TFRecord object detection specific functionality.

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
	protos "github.com/sensorable/bddconv/protos"
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// TFRecordAnnotatedFile defines the TFRecord annotation structure for a single image.
type TFRecordAnnotatedFile struct {
	Annotations TFFeatureMap
	FilePath    string
}

// tfLabelID converts a class ID to a TensorFlow label map ID. ID 0 is reserved for the background
// class in TensorFlow label maps.
func tfLabelID(classID int) int64 {
	return int64(classID) + 1
}

// toTFRecord converts the intermediate representation for a single image, stored at imagePath, to
// the TFRecord format.
func toTFRecord(fileData AnnotatedFile, imagePath string) (TFRecordAnnotatedFile, error) {
	// Get the image width and height.
	img, format, err := decodeImageConfig(imagePath)
	if err != nil {
		return TFRecordAnnotatedFile{}, fmt.Errorf("failed to decode the image metadata: %v", err)
	}
	if img.Width == 0 || img.Height == 0 {
		return TFRecordAnnotatedFile{}, fmt.Errorf("empty image %q", imagePath)
	}

	// Read the image data.
	imgData, err := readFile(imagePath)
	if err != nil {
		return TFRecordAnnotatedFile{}, fmt.Errorf("failed to read the image: %v", err)
	}

	// Prepare the feature map for the per image data.
	f := make(map[string]interface{}, 16)
	f["image/height"] = img.Height
	f["image/width"] = img.Width
	f["image/filename"] = fileData.FilePath
	f["image/source_id"] = fileData.FilePath
	f["image/encoded"] = imgData
	f["image/format"] = format

	// Prepare the per label data.
	numLabels := len(fileData.Annotations)
	xmins := make([]float32, numLabels)
	ymins := make([]float32, numLabels)
	xmaxs := make([]float32, numLabels)
	ymaxs := make([]float32, numLabels)
	classes := make([]string, numLabels)
	classIDs := make([]int64, numLabels)
	for i, a := range fileData.Annotations {
		xmins[i] = float32(a.Coords[0]) / float32(img.Width)
		ymins[i] = float32(a.Coords[1]) / float32(img.Height)
		xmaxs[i] = float32(a.Coords[2]) / float32(img.Width)
		ymaxs[i] = float32(a.Coords[3]) / float32(img.Height)
		classes[i] = a.Label
		classIDs[i] = tfLabelID(a.ClassID)
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = classIDs

	return TFRecordAnnotatedFile{
		Annotations: f,
		FilePath:    fileData.FilePath,
	}, nil
}

// WriteTFRecord does a streaming conversion, serialisation and file write for the annotation data
// to one or more TFRecord files stored under recordFilePath (with suffixes added when numShards>1).
// Images are read from imageDir by their identifier. Images without annotations are not written,
// and images that cannot be read are logged and skipped.
//
// The label map for mapping is written to labelMapPath.
func WriteTFRecord(recordFilePath, labelMapPath, imageDir string, data []AnnotatedFile,
	mapping ClassMapping, numShards int) (err error) {

	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	data = AnnotatedFiles(data).NonEmpty()
	numShards = shardCount(numShards, len(data))

	fmtShardSuffix := func(idx int) string {
		return fmt.Sprintf("-%05d-of-%05d", idx, numShards)
	}

	// Shard files are opened lazily, so shards without any successful example are not created.
	var shardFile *os.File
	shardIdx := -1
	numWritten := 0
	closeShard := func() error {
		if shardFile == nil {
			return nil
		}
		f := shardFile
		shardFile = nil
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close shard %q: %v", f.Name(), err)
		}
		return nil
	}
	defer func() { _ = closeShard() }()

	// Convert and serialise one data element at a time.
	for i, fileData := range data {
		// Convert the file data to an example.
		imagePath := filepath.Join(imageDir, fileData.FilePath)
		tfFileData, err := toTFRecord(fileData, imagePath)
		if err != nil {
			log.Printf("Failed to convert %q: %v", fileData.FilePath, err)
			continue
		}
		tfExample := example.New(tfFileData.Annotations)

		// Switch to the shard of this element if necessary.
		if idx := shardIndex(i, len(data), numShards); idx != shardIdx || shardFile == nil {
			if err := closeShard(); err != nil {
				return err
			}
			shardIdx = idx

			shardPath := recordFilePath
			if numShards > 1 {
				shardPath += fmtShardSuffix(shardIdx)
			}
			f, err := os.Create(shardPath)
			if err != nil {
				return fmt.Errorf("failed to create shard at %q: %v", shardPath, err)
			}
			shardFile = f
		}

		// Write the example.
		if err := writeTFRecordExample(shardFile, tfExample); err != nil {
			return fmt.Errorf("failed to write example for %q: %v", fileData.FilePath, err)
		}
		numWritten++
	}

	if err := closeShard(); err != nil {
		return err
	}
	log.Printf("Wrote %d TFRecord examples to %s", numWritten, recordFilePath)

	return SaveLabelMap(labelMapPath, mapping)
}

// shardCount returns the number of shards for numItems elements: at least one, at most one per
// element.
func shardCount(numShards, numItems int) int {
	if numShards > numItems {
		numShards = numItems
	}
	if numShards < 1 {
		numShards = 1
	}
	return numShards
}

// shardIndex returns the shard of element i when numItems elements are spread evenly over
// numShards shards.
func shardIndex(i, numItems, numShards int) int {
	return i * numShards / numItems
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// SaveLabelMap converts mapping to a TensorFlow label map in prototxt format and writes it to
// path. Items are ordered by class ID and their IDs are shifted by one, as label map IDs start at 1.
func SaveLabelMap(path string, mapping ClassMapping) (err error) {
	// Copy the label map into the protobuf structure.
	siLabelMap := &protos.StringIntLabelMap{}
	siLabelMap.Item = make([]*protos.StringIntLabelMapItem, 0, len(mapping))
	for _, k := range mapping.Labels() {
		siLabelMap.Item = append(siLabelMap.Item, &protos.StringIntLabelMapItem{
			Name: proto.String(k),
			Id:   proto.Int32(int32(tfLabelID(mapping[k]))),
		})
	}

	// Write the label map.
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create the label map file %q: %v", path, err)
	}
	defer closeWithErrCheck(file, &err)

	if err := proto.MarshalText(file, siLabelMap); err != nil {
		return fmt.Errorf("failed to write the label map %q: %v", path, err)
	}

	return nil
}

// LoadLabelMap loads the TensorFlow label map at path and converts it back to a class mapping.
//
// If an error occurs because the file does not exist, then os.IsNotExist will return true for the
// error.
func LoadLabelMap(path string) (ClassMapping, error) {
	text, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var siLabelMap protos.StringIntLabelMap
	if err := proto.UnmarshalText(string(text), &siLabelMap); err != nil {
		return nil, fmt.Errorf("failed to parse the label map %q: %v", path, err)
	}

	mapping := make(ClassMapping, len(siLabelMap.Item))
	for _, item := range siLabelMap.Item {
		k, v := item.GetName(), item.GetId()
		if k == "" || v <= 0 {
			return nil, fmt.Errorf("invalid entry: %s: %d", k, v)
		}

		mapping[k] = int(v) - 1
	}

	return mapping, nil
}

// VerifyLabelMap loads the label map at path and checks that it holds exactly mapping.
func VerifyLabelMap(path string, mapping ClassMapping) error {
	loaded, err := LoadLabelMap(path)
	if err != nil {
		return err
	}

	if len(loaded) != len(mapping) {
		return fmt.Errorf("label map %q has %d entries, expected %d", path, len(loaded), len(mapping))
	}
	for k, v := range mapping {
		if id, ok := loaded[k]; !ok || id != v {
			return fmt.Errorf("label map %q does not map %q to %d", path, k, v)
		}
	}

	return nil
}
