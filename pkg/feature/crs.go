package feature

import (
	"fmt"
	"strconv"
	"strings"
)

// CRS identifies a coordinate reference system by EPSG code.
// The zero value means "undetermined" and never passes validation.
type CRS int

// Reference systems the pipeline encounters regularly.
const (
	CRSUndetermined CRS = 0
	WGS84           CRS = 4326 // geographic, degrees
	ETRS89          CRS = 4258 // geographic, degrees
	SWEREF99TM      CRS = 3006 // projected, meters (Sweden)
	WebMercator     CRS = 3857 // projected, meters
)

// Family groups reference systems by the unit their coordinates carry.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyGeographic
	FamilyProjected
)

// geographicCodes and projectedCodes enumerate the systems whose coordinate
// magnitudes the validator knows how to judge. Codes outside both sets get
// FamilyUnknown and a permissive magnitude check.
var (
	geographicCodes = map[CRS]bool{
		WGS84:  true,
		ETRS89: true,
		4619:   true, // SWEREF99 geographic
	}
	projectedCodes = map[CRS]bool{
		SWEREF99TM:  true,
		WebMercator: true,
		25832:       true, // ETRS89 / UTM 32N
		25833:       true, // ETRS89 / UTM 33N
		3011:        true, // SWEREF99 18 00
	}
)

// Family reports which unit family the CRS belongs to.
func (c CRS) Family() Family {
	switch {
	case geographicCodes[c]:
		return FamilyGeographic
	case projectedCodes[c]:
		return FamilyProjected
	default:
		return FamilyUnknown
	}
}

// IsZero reports whether the CRS is undetermined.
func (c CRS) IsZero() bool { return c == CRSUndetermined }

func (c CRS) String() string {
	if c.IsZero() {
		return "undetermined"
	}
	return fmt.Sprintf("EPSG:%d", int(c))
}

// ParseCRS accepts the spellings that appear in configurations and server
// responses: a bare EPSG code ("3006"), a prefixed one ("EPSG:4326", also
// the urn:ogc form), or the OGC aliases "CRS84" and "WGS84".
func ParseCRS(s string) (CRS, error) {
	t := strings.TrimSpace(strings.ToUpper(s))
	if t == "" {
		return CRSUndetermined, fmt.Errorf("empty crs")
	}

	switch t {
	case "CRS84", "WGS84", "OGC:CRS84":
		return WGS84, nil
	}

	// urn:ogc:def:crs:EPSG::4326 and EPSG:4326 both end in the code.
	if i := strings.LastIndex(t, ":"); i >= 0 {
		t = t[i+1:]
	}

	code, err := strconv.Atoi(t)
	if err != nil || code <= 0 {
		return CRSUndetermined, fmt.Errorf("unparseable crs %q", s)
	}
	return CRS(code), nil
}
