package terrainmesh

import (
	"context"
	"fmt"
	"math"
)

// An ElevationGrid is a row-major grid of elevation samples.
type ElevationGrid struct {
	Rows    int
	Cols    int
	Samples [][]float64
	NoData  float64
	// HasNoData is false when the source raster has no no-data sentinel.
	HasNoData bool
}

// A ClipRange clamps samples. A nil bound is not applied.
type ClipRange struct {
	Min *float64
	Max *float64
}

// IsNoData returns whether sample equals g's no-data sentinel.
func (g *ElevationGrid) IsNoData(sample float64) bool {
	return g.HasNoData && sample == g.NoData
}

// Clip clamps every sample of g to clipRange in place.
func (g *ElevationGrid) Clip(clipRange ClipRange) {
	if clipRange.Min == nil && clipRange.Max == nil {
		return
	}
	for _, row := range g.Samples {
		for i, sample := range row {
			if clipRange.Min != nil && sample < *clipRange.Min {
				sample = *clipRange.Min
			}
			if clipRange.Max != nil && sample > *clipRange.Max {
				sample = *clipRange.Max
			}
			row[i] = sample
		}
	}
}

// ReadElevationGrid reads window from raster, taking every stride-th sample
// along each axis. NaN samples are replaced with zero before clipRange is
// applied.
func ReadElevationGrid(ctx context.Context, raster Raster, window PixelWindow, stride int, clipRange ClipRange) (*ElevationGrid, error) {
	if stride < 1 {
		return nil, fmt.Errorf("%w: stride %d", ErrInvalidRequest, stride)
	}
	samples, err := raster.ReadWindow(ctx, window, stride)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", window, err)
	}
	if len(samples) == 0 || len(samples[0]) == 0 {
		return nil, fmt.Errorf("%s: %w", window, ErrWindowOutOfBounds)
	}

	g := &ElevationGrid{
		Rows:    len(samples),
		Cols:    len(samples[0]),
		Samples: samples,
	}
	g.NoData, g.HasNoData = raster.NoData()

	for _, row := range g.Samples {
		if len(row) != g.Cols {
			return nil, fmt.Errorf("%s: ragged rows", window)
		}
		for i, sample := range row {
			if math.IsNaN(sample) {
				row[i] = 0
			}
		}
	}
	g.Clip(clipRange)
	return g, nil
}

// strided returns the number of samples taken from n with stride.
func strided(n, stride int) int {
	return (n + stride - 1) / stride
}
