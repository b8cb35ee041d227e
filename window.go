package terrainmesh

import "fmt"

// A PixelWindow is a rectangular region of a raster's pixel grid. Its offset
// may be negative or beyond the raster; bounds are checked by the raster.
type PixelWindow struct {
	OffsetX int
	OffsetY int
	Width   int
	Height  int
}

func (w PixelWindow) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", w.Width, w.Height, w.OffsetX, w.OffsetY)
}

// Contains returns whether w lies entirely within a raster of the given size.
func (w PixelWindow) Contains(width, height int) bool {
	return w.OffsetX >= 0 && w.OffsetY >= 0 &&
		w.OffsetX+w.Width <= width && w.OffsetY+w.Height <= height
}

// NewPixelWindow returns the pixel window of gt covering a square of side
// areaKM kilometers centered on (lat, lon). Distances are converted to
// degrees with KilometersPerDegree.
func NewPixelWindow(gt GeoTransform, lat, lon, areaKM float64) (PixelWindow, error) {
	inv, err := gt.Invert()
	if err != nil {
		return PixelWindow{}, err
	}
	areaDeg := areaKM / KilometersPerDegree
	col, row := inv.Apply(lon, lat)
	centerX, centerY := int(col), int(row)

	pixelWidth, pixelHeight := gt.PixelSize()
	halfX := int(areaDeg/pixelWidth) / 2
	halfY := int(areaDeg/pixelHeight) / 2

	return PixelWindow{
		OffsetX: centerX - halfX,
		OffsetY: centerY - halfY,
		Width:   max(2*halfX, 1),
		Height:  max(2*halfY, 1),
	}, nil
}
