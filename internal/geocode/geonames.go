package geocode

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/kozaktomas/photo-indexer/internal/database"
	"github.com/kozaktomas/photo-indexer/internal/errkind"
)

// GeoNames dump columns (cities500.txt, allCountries.txt).
const (
	colGeonameID = iota
	colName
	colASCIIName
	colAlternateNames
	colLatitude
	colLongitude
	colFeatureClass
	colFeatureCode
	colCountryCode
	colCC2
	colAdmin1
	colAdmin2
	colAdmin3
	colAdmin4
	colPopulation
	colElevation
	colDEM
	colTimezone
	colModificationDate

	geonamesColumns
)

// ParseGeoNames streams a tab-separated GeoNames dump and calls fn for every
// row. Names are NFC-normalized. A malformed row stops parsing with an error
// naming its line.
func ParseGeoNames(r io.Reader, fn func(database.GazetteerPoint) error) (int, error) {
	scanner := bufio.NewScanner(r)
	// alternatenames can be very long
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	count := 0
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "#") {
			continue
		}

		point, err := parseGeoNamesRow(text)
		if err != nil {
			return count, fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(point); err != nil {
			return count, err
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("read gazetteer: %w", err)
	}
	return count, nil
}

func parseGeoNamesRow(text string) (database.GazetteerPoint, error) {
	fields := strings.Split(text, "\t")
	if len(fields) != geonamesColumns {
		return database.GazetteerPoint{}, errkind.Wrap(errkind.ErrValidation,
			fmt.Sprintf("expected %d columns, got %d", geonamesColumns, len(fields)), nil)
	}

	id, err := strconv.ParseInt(fields[colGeonameID], 10, 64)
	if err != nil {
		return database.GazetteerPoint{}, errkind.Wrap(errkind.ErrValidation, "invalid geonameid", err)
	}
	lat, err := strconv.ParseFloat(fields[colLatitude], 64)
	if err != nil || lat < -90 || lat > 90 {
		return database.GazetteerPoint{}, errkind.Wrap(errkind.ErrValidation, "invalid latitude "+fields[colLatitude], err)
	}
	lon, err := strconv.ParseFloat(fields[colLongitude], 64)
	if err != nil || lon < -180 || lon > 180 {
		return database.GazetteerPoint{}, errkind.Wrap(errkind.ErrValidation, "invalid longitude "+fields[colLongitude], err)
	}

	var population int64
	if s := fields[colPopulation]; s != "" {
		population, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return database.GazetteerPoint{}, errkind.Wrap(errkind.ErrValidation, "invalid population", err)
		}
	}

	name := norm.NFC.String(strings.TrimSpace(fields[colName]))
	if name == "" {
		return database.GazetteerPoint{}, errkind.Wrap(errkind.ErrValidation, "empty name", nil)
	}

	return database.GazetteerPoint{
		GeonameID:   id,
		Name:        name,
		ASCIIName:   strings.TrimSpace(fields[colASCIIName]),
		Admin1Code:  strings.TrimSpace(fields[colAdmin1]),
		CountryCode: strings.TrimSpace(fields[colCountryCode]),
		Latitude:    lat,
		Longitude:   lon,
		Population:  population,
	}, nil
}
