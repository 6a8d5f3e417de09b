// Converts BDD100K object detection labels to the custom bounding box text format, with optional
// TFRecord and object crop exports.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/sensorable/bddconv"
)

var (
	labelFilePath string // The BDD100K label file.
	labelOutDir   string // The output directory for custom label files.
	imageDirPath  string // The directory with the labelled images (optional exports only).

	perFrameNames bool // Name the output of each frame of a multi-frame document individually.
	reportSkipped bool // Log the number of skipped objects.

	tfRecordFilePath         string // The TFRecord output file.
	tfRecordLabelMapFilePath string // The TFRecord label map file.
	numShardFiles            int    // The number of shard files to create.

	cropsOutDir      string // The output directory for object crops.
	imageJPEGQuality int    // The JPEG quality for crops and distance overlays.

	distancesOutDir string // The output directory for distance overlay images.
	focalLength     int    // The camera focal length in pixels.
	maxY            int    // The lowest box bottom edge row that is measured.
)

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  custom labels:\t-labels <file> -labels-out <dir>")
		_, _ = fmt.Fprintln(os.Stderr, "  tfrecord export:\t-images <dir> -tfrecord <file>"+
			" -tfrecord-label-map-file <file> [-num-shards]")
		_, _ = fmt.Fprintln(os.Stderr, "  crop export:\t\t-images <dir> -crops-out <dir> [-jpeg-quality]")
		_, _ = fmt.Fprintln(os.Stderr, "  distance overlays:\t-images <dir> -distances-out <dir>"+
			" [-focal-length] [-max-y] [-jpeg-quality]")
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		log.Print(msg...)
		flag.Usage()
		os.Exit(1)
	}

	// Path arguments.
	flag.StringVar(&labelFilePath, "labels", labelFilePath,
		"The `path` to the BDD100K label file")
	flag.StringVar(&labelOutDir, "labels-out", labelOutDir,
		"The `path` to the output directory for the custom label files (created if missing)")
	flag.StringVar(&imageDirPath, "images", imageDirPath,
		"The `path` to the image directory (only required for -tfrecord and -crops-out)")

	// Conversion arguments.
	flag.BoolVar(&perFrameNames, "per-frame-names", perFrameNames,
		"Name the labels of each frame of a multi-frame file <name>_<frame> instead of <name>")
	flag.BoolVar(&reportSkipped, "report-skipped", reportSkipped,
		"Log how many objects were skipped for a missing box2d or an unmapped category")

	// Export arguments.
	flag.StringVar(&tfRecordFilePath, "tfrecord", tfRecordFilePath,
		"The TFRecord output file `path`")
	flag.StringVar(&tfRecordLabelMapFilePath, "tfrecord-label-map-file", tfRecordLabelMapFilePath,
		"The TFRecord label map file `path`")
	flag.IntVar(&numShardFiles, "num-shards", 1,
		"The number of shard files to create (tfrecord only)")
	flag.StringVar(&cropsOutDir, "crops-out", cropsOutDir,
		"The `path` to the output directory for object crops")
	flag.StringVar(&distancesOutDir, "distances-out", distancesOutDir,
		"The `path` to the output directory for images with estimated object distances")
	flag.IntVar(&focalLength, "focal-length", bddconv.DefaultDistanceConfig().FocalLength,
		"The camera focal length in `pixels` used for distance estimation")
	flag.IntVar(&maxY, "max-y", bddconv.DefaultDistanceConfig().MaxY,
		"Objects whose box bottom edge is below this `row` are not measured")
	flag.IntVar(&imageJPEGQuality, "jpeg-quality", 90,
		"The quality to use when encoding JPEGs [1, 100]")

	// Parse and validate flags.
	flag.Parse()

	if labelFilePath == "" || labelOutDir == "" {
		printUsageAndExit("Missing label input or output path argument")
	}
	if (tfRecordFilePath != "" || cropsOutDir != "" || distancesOutDir != "") && imageDirPath == "" {
		printUsageAndExit("Missing image directory path")
	}
	if tfRecordFilePath != "" && tfRecordLabelMapFilePath == "" {
		printUsageAndExit("Missing label map output path argument")
	}
	if focalLength <= 0 {
		printUsageAndExit("Invalid value for -focal-length: ", focalLength)
	}
	if numShardFiles < 1 {
		printUsageAndExit("Invalid value for -num-shards: ", numShardFiles)
	}
	if imageJPEGQuality < 1 || imageJPEGQuality > 100 {
		imageJPEGQuality = 92
		log.Print("Invalid JPEG quality, setting it to ", imageJPEGQuality)
	}

	// Clean path arguments.
	labelFilePath = filepath.Clean(labelFilePath)
	labelOutDir = filepath.Clean(labelOutDir)
	if labelFilePath == labelOutDir {
		printUsageAndExit("The label input and output paths cannot be identical")
	}
	if imageDirPath != "" {
		imageDirPath = filepath.Clean(imageDirPath)
	}
	if cropsOutDir != "" {
		cropsOutDir = filepath.Clean(cropsOutDir)
		if cropsOutDir == imageDirPath {
			printUsageAndExit("The image input and crop output paths cannot be identical")
		}
	}
	if distancesOutDir != "" {
		distancesOutDir = filepath.Clean(distancesOutDir)
		if distancesOutDir == imageDirPath {
			printUsageAndExit("The image input and distance output paths cannot be identical")
		}
	}
	if tfRecordFilePath != "" {
		tfRecordFilePath = filepath.Clean(tfRecordFilePath)
		tfRecordLabelMapFilePath = filepath.Clean(tfRecordLabelMapFilePath)
	}
}

func main() {
	mapping := bddconv.DefaultClassMapping()

	// Parse input.
	opts := bddconv.ConvertOptions{PerFrameNames: perFrameNames}
	data, stats, err := bddconv.FromBDD100K(labelFilePath, mapping, opts)
	if err != nil {
		log.Fatal("Failed to parse the input: ", err)
	}
	if reportSkipped {
		stats.Log()
	}

	// Write the custom labels.
	if err := bddconv.WriteCustom(labelOutDir, bddconv.ToCustom(data)); err != nil {
		log.Fatal("Conversion failed: ", err)
	}

	// Optional exports.
	if tfRecordFilePath != "" {
		err := bddconv.WriteTFRecord(tfRecordFilePath, tfRecordLabelMapFilePath, imageDirPath, data,
			mapping, numShardFiles)
		if err != nil {
			log.Fatal("TFRecord export failed: ", err)
		}
		if err := bddconv.VerifyLabelMap(tfRecordLabelMapFilePath, mapping); err != nil {
			log.Fatal("Label map check failed: ", err)
		}
	}
	if cropsOutDir != "" {
		if _, err := bddconv.CropObjects(data, imageDirPath, cropsOutDir, imageJPEGQuality); err != nil {
			log.Fatal("Crop export failed: ", err)
		}
	}
	if distancesOutDir != "" {
		cfg := bddconv.DefaultDistanceConfig()
		cfg.FocalLength = focalLength
		cfg.MaxY = maxY
		cfg.JPEGQuality = imageJPEGQuality

		identifiers := make([]string, 0, len(data))
		for _, f := range data.NonEmpty() {
			identifiers = append(identifiers, f.FilePath)
		}
		_, err := bddconv.WriteDistanceOverlays(labelOutDir, imageDirPath, distancesOutDir,
			identifiers, cfg)
		if err != nil {
			log.Fatal("Distance estimation failed: ", err)
		}
	}

	log.Printf("Total number of labelled images: %d (%d annotations)",
		len(data.NonEmpty()), data.NumAnnotations())
}
