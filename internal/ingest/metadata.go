package ingest

import (
	"bytes"
	"math"
	"path"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// imageExtensions are the file extensions registered as photos.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
}

// IsImageFile reports whether name has a registered image extension (case-insensitive).
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(path.Ext(name))]
}

// Metadata is what registration reads from a photo's EXIF block.
type Metadata struct {
	Latitude  *float64
	Longitude *float64
	TakenAt   *time.Time
}

// ExtractMetadata reads GPS position and capture time. Images without EXIF,
// or with partial or out-of-range values, yield empty fields rather than an error.
func ExtractMetadata(data []byte) Metadata {
	var md Metadata

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return md
	}

	if lat, lon, err := x.LatLong(); err == nil && validCoordinates(lat, lon) {
		md.Latitude = &lat
		md.Longitude = &lon
	}

	if t, err := x.DateTime(); err == nil && !t.IsZero() {
		md.TakenAt = &t
	}
	return md
}

func validCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	// 0,0 is what many cameras write when the fix is missing
	if lat == 0 && lon == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
