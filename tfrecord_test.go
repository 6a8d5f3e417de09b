package bddconv

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelMapRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "label_map.pbtxt")
	mapping := DefaultClassMapping()

	require.NoError(t, SaveLabelMap(path, mapping))

	text, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(text), `name: "person"`)
	assert.Contains(t, string(text), `name: "schoolzone"`)
	assert.Equal(t, 28, strings.Count(string(text), "id: "))

	loaded, err := LoadLabelMap(path)
	require.NoError(t, err)
	if diff := cmp.Diff(mapping, loaded); diff != "" {
		t.Errorf("LoadLabelMap() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadLabelMap_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadLabelMap(filepath.Join(dir, "missing.pbtxt"))
	assert.True(t, os.IsNotExist(err), "got %v", err)

	path := writeTestFile(t, dir, "zero.pbtxt", "item { name: \"car\" id: 0 }")
	_, err = LoadLabelMap(path)
	assert.Error(t, err)

	path = writeTestFile(t, dir, "garbage.pbtxt", "item { nope")
	_, err = LoadLabelMap(path)
	assert.Error(t, err)
}

func TestToTFRecord(t *testing.T) {
	imageDir := t.TempDir()
	imagePath := writeTestImage(t, imageDir, "img1.jpg", 200, 100)

	fileData := AnnotatedFile{
		FilePath: "img1.jpg",
		Annotations: []Annotation{
			{ClassID: 2, Coords: [4]float64{20, 10, 100, 50}, Label: "car"},
			{ClassID: 0, Coords: [4]float64{0, 0, 200, 100}, Label: "person"},
		},
	}

	tf, err := toTFRecord(fileData, imagePath)
	require.NoError(t, err)

	f := tf.Annotations
	assert.Equal(t, 100, f["image/height"])
	assert.Equal(t, 200, f["image/width"])
	assert.Equal(t, "img1.jpg", f["image/filename"])
	assert.Equal(t, "png", f["image/format"])
	assert.Equal(t, []float32{0.1, 0}, f["image/object/bbox/xmin"])
	assert.Equal(t, []float32{0.1, 0}, f["image/object/bbox/ymin"])
	assert.Equal(t, []float32{0.5, 1}, f["image/object/bbox/xmax"])
	assert.Equal(t, []float32{0.5, 1}, f["image/object/bbox/ymax"])
	assert.Equal(t, []string{"car", "person"}, f["image/object/class/text"])
	assert.Equal(t, []int64{3, 1}, f["image/object/class/label"])
}

func TestWriteTFRecord(t *testing.T) {
	dir := t.TempDir()
	imageDir := filepath.Join(dir, "images")
	require.NoError(t, os.Mkdir(imageDir, 0755))
	writeTestImage(t, imageDir, "img1.jpg", 64, 48)
	writeTestImage(t, imageDir, "img2.jpg", 64, 48)

	car := Annotation{ClassID: 2, Coords: [4]float64{1, 2, 30, 40}, Label: "car"}
	data := []AnnotatedFile{
		{FilePath: "img1.jpg", Annotations: []Annotation{car}},
		{FilePath: "empty.jpg"},
		{FilePath: "img2.jpg", Annotations: []Annotation{car, car}},
		{FilePath: "missing.jpg", Annotations: []Annotation{car}},
	}

	recordPath := filepath.Join(dir, "train.record")
	labelMapPath := filepath.Join(dir, "label_map.pbtxt")
	require.NoError(t, WriteTFRecord(recordPath, labelMapPath, imageDir, data,
		DefaultClassMapping(), 1))

	info, err := os.Stat(recordPath)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())

	loaded, err := LoadLabelMap(labelMapPath)
	require.NoError(t, err)
	assert.Equal(t, DefaultClassMapping(), loaded)
}

func TestWriteTFRecord_Shards(t *testing.T) {
	dir := t.TempDir()
	imageDir := t.TempDir()
	car := Annotation{ClassID: 2, Coords: [4]float64{1, 2, 3, 4}, Label: "car"}

	var data []AnnotatedFile
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		writeTestImage(t, imageDir, name, 8, 8)
		data = append(data, AnnotatedFile{FilePath: name, Annotations: []Annotation{car}})
	}

	recordPath := filepath.Join(dir, "train.record")
	require.NoError(t, WriteTFRecord(recordPath, filepath.Join(dir, "label_map.pbtxt"), imageDir,
		data, ClassMapping{"car": 2}, 2))

	for _, suffix := range []string{"-00000-of-00002", "-00001-of-00002"} {
		info, err := os.Stat(recordPath + suffix)
		require.NoError(t, err)
		assert.NotZero(t, info.Size(), suffix)
	}
	_, err := os.Stat(recordPath)
	assert.True(t, os.IsNotExist(err))
}

func TestWriteTFRecord_NoData(t *testing.T) {
	dir := t.TempDir()
	labelMapPath := filepath.Join(dir, "label_map.pbtxt")
	require.NoError(t, WriteTFRecord(filepath.Join(dir, "train.record"), labelMapPath, dir,
		[]AnnotatedFile{{FilePath: "empty.jpg"}}, ClassMapping{"car": 2}, 1))

	_, err := os.Stat(labelMapPath)
	assert.NoError(t, err)
}

func TestShardIndex(t *testing.T) {
	tests := []struct {
		numItems, numShards int
		want                []int
	}{
		{3, 1, []int{0, 0, 0}},
		{3, 2, []int{0, 0, 1}},
		{4, 3, []int{0, 0, 1, 2}},
		{2, 2, []int{0, 1}},
	}
	for _, tt := range tests {
		got := make([]int, tt.numItems)
		for i := range got {
			got[i] = shardIndex(i, tt.numItems, tt.numShards)
		}
		assert.Equal(t, tt.want, got, "%d items over %d shards", tt.numItems, tt.numShards)
	}

	assert.Equal(t, 2, shardCount(5, 2))
	assert.Equal(t, 1, shardCount(0, 4))
	assert.Equal(t, 1, shardCount(3, 0))
	assert.Equal(t, 3, shardCount(3, 10))
}

func TestWriteTFRecord_MoreShardsThanImages(t *testing.T) {
	dir := t.TempDir()
	imageDir := t.TempDir()
	car := Annotation{ClassID: 2, Coords: [4]float64{1, 2, 3, 4}, Label: "car"}

	var data []AnnotatedFile
	for _, name := range []string{"a.jpg", "b.jpg"} {
		writeTestImage(t, imageDir, name, 8, 8)
		data = append(data, AnnotatedFile{FilePath: name, Annotations: []Annotation{car}})
	}

	recordPath := filepath.Join(dir, "train.record")
	require.NoError(t, WriteTFRecord(recordPath, filepath.Join(dir, "label_map.pbtxt"), imageDir,
		data, ClassMapping{"car": 2}, 5))

	assert.ElementsMatch(t,
		[]string{"train.record-00000-of-00002", "train.record-00001-of-00002", "label_map.pbtxt"},
		listDir(t, dir))
}

func TestWriteTFRecord_NoEmptyShards(t *testing.T) {
	dir := t.TempDir()
	imageDir := t.TempDir()
	car := Annotation{ClassID: 2, Coords: [4]float64{1, 2, 3, 4}, Label: "car"}

	// The images of the first shard do not exist.
	writeTestImage(t, imageDir, "c.jpg", 8, 8)
	writeTestImage(t, imageDir, "d.jpg", 8, 8)
	var data []AnnotatedFile
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"} {
		data = append(data, AnnotatedFile{FilePath: name, Annotations: []Annotation{car}})
	}

	recordPath := filepath.Join(dir, "train.record")
	require.NoError(t, WriteTFRecord(recordPath, filepath.Join(dir, "label_map.pbtxt"), imageDir,
		data, ClassMapping{"car": 2}, 2))

	assert.ElementsMatch(t, []string{"train.record-00001-of-00002", "label_map.pbtxt"},
		listDir(t, dir))
}

func TestVerifyLabelMap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "label_map.pbtxt")
	mapping := ClassMapping{"car": 2, "person": 0}
	require.NoError(t, SaveLabelMap(path, mapping))

	assert.NoError(t, VerifyLabelMap(path, mapping))
	assert.Error(t, VerifyLabelMap(path, ClassMapping{"car": 2}))
	assert.Error(t, VerifyLabelMap(path, ClassMapping{"car": 3, "person": 0}))
	assert.Error(t, VerifyLabelMap(path, ClassMapping{"car": 2, "bus": 0}))
	assert.Error(t, VerifyLabelMap(filepath.Join(dir, "missing.pbtxt"), mapping))
}
