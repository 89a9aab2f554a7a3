package store

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// srid is WGS 84, the datum state sources publish coordinates in.
const srid = 4326

// encodeLocation converts a coordinate pair to EWKB for the PostGIS
// location column. Returns nil, nil when either coordinate is missing.
func encodeLocation(lat, lon *float64) ([]byte, error) {
	if lat == nil || lon == nil {
		return nil, nil
	}
	p := geom.NewPointFlat(geom.XY, []float64{*lon, *lat}).SetSRID(srid)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode location")
	}
	return data, nil
}
