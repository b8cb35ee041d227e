package terrainmesh

import "math"

// A GeoTransform is an affine transform from pixel coordinates to geographic
// coordinates, in GDAL order:
//
//	x = gt[0] + col*gt[1] + row*gt[2]
//	y = gt[3] + col*gt[4] + row*gt[5]
type GeoTransform [6]float64

// Apply returns the geographic coordinate of the pixel coordinate (col, row).
func (gt GeoTransform) Apply(col, row float64) (float64, float64) {
	return gt[0] + col*gt[1] + row*gt[2], gt[3] + col*gt[4] + row*gt[5]
}

// Invert returns the inverse of gt.
func (gt GeoTransform) Invert() (GeoTransform, error) {
	det := gt[1]*gt[5] - gt[2]*gt[4]
	if det == 0 || math.IsNaN(det) {
		return GeoTransform{}, ErrNotInvertible
	}
	invDet := 1 / det
	a, b := gt[5]*invDet, -gt[2]*invDet
	d, e := -gt[4]*invDet, gt[1]*invDet
	return GeoTransform{
		-gt[0]*a - gt[3]*b, a, b,
		-gt[0]*d - gt[3]*e, d, e,
	}, nil
}

// PixelSize returns the absolute width and height of a pixel in geographic
// units.
func (gt GeoTransform) PixelSize() (float64, float64) {
	return math.Abs(gt[1]), math.Abs(gt[5])
}
