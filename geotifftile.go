package terrainmesh

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
	_ "github.com/google/tiff/geotiff"
	"github.com/klauspost/compress/zlib"
	"github.com/maypok86/otter/v2"
	"golang.org/x/image/tiff/lzw"
)

const (
	compressionLZW          = 5
	compressionDeflate      = 8
	compressionAdobeDeflate = 32946

	predictorNone          = 1
	predictorFloatingPoint = 3

	modelTypeProjected = 1
)

var errShortRead = errors.New("short read")

// A GeoTIFFTile is an open single band float32 GeoTIFF file.
type GeoTIFFTile struct {
	file                      *os.File
	byteOrder                 binary.ByteOrder
	imageWidth                int
	imageLength               int
	tileWidth                 int
	tileLength                int
	tilesAcross               int
	tilesDown                 int
	tileOffsets               []uint64
	tileByteCounts            []uint64
	smallestTileByteCount     uint64
	tileSampleCount           int
	tileByteCountUncompressed int
	tileCacheSizeBytes        int
	tileSamplesCache          *otter.Cache[TileCoord, []float32]
	emptyTileBytes            []byte
	compression               int
	predictor                 int
	geoTransform              GeoTransform
	noData                    float64
	hasNoData                 bool
	srid                      int
}

type GeoTIFFTileOption func(*GeoTIFFTile)

// A geoTIFFIFD is a struct into which github.com/google/tiff can unmarshal an
// IFD.
type geoTIFFIFD struct {
	ImageWidth                uint16    `tiff:"field,tag=256"`
	ImageLength               uint16    `tiff:"field,tag=257"`
	BitsPerSample             uint16    `tiff:"field,tag=258"`
	Compression               uint16    `tiff:"field,tag=259"`
	PhotometricInterpretation uint16    `tiff:"field,tag=262"`
	SamplesPerPixel           uint16    `tiff:"field,tag=277"`
	PlanarConfiguration       uint16    `tiff:"field,tag=284"`
	Predictor                 uint16    `tiff:"field,tag=317"`
	TileWidth                 uint16    `tiff:"field,tag=322"`
	TileLength                uint16    `tiff:"field,tag=323"`
	TileOffsets               []uint64  `tiff:"field,tag=324"`
	TileByteCounts            []uint64  `tiff:"field,tag=325"`
	SampleFormat              uint16    `tiff:"field,tag=339"`
	ModelPixelScaleTag        []float64 `tiff:"field,tag=33550"`
	ModelTiepointTag          []float64 `tiff:"field,tag=33922"`
	GeoKeyDirectoryTag        []uint16  `tiff:"field,tag=34735"`
	GeoDoubleParamsTag        []float64 `tiff:"field,tag=34736"`
	GeoASCIIParamsTag         string    `tiff:"field,tag=34737"`
	GDALMetadata              string    `tiff:"field,tag=42112"`
	GDALNoData                string    `tiff:"field,tag=42113"`
}

// NewGeoTIFFTile returns a new GeoTIFFTile.
func NewGeoTIFFTile(fsys fs.FS, filename string, options ...GeoTIFFTileOption) (*GeoTIFFTile, error) {
	var err error
	ok := false

	f := &GeoTIFFTile{
		tileCacheSizeBytes: 128 << 20, // 128MB.
	}
	for _, option := range options {
		option(f)
	}

	file, err := fsys.Open(filename)
	if err != nil {
		return nil, err
	}
	if _, ok := file.(*os.File); !ok {
		_ = file.Close()
		return nil, errors.ErrUnsupported
	}
	f.file = file.(*os.File)
	defer func() {
		if !ok {
			_ = f.file.Close()
		}
	}()

	var byteOrderMark [2]byte
	if _, err := f.file.ReadAt(byteOrderMark[:], 0); err != nil {
		return nil, err
	}
	switch string(byteOrderMark[:]) {
	case "II":
		f.byteOrder = binary.LittleEndian
	case "MM":
		f.byteOrder = binary.BigEndian
	default:
		return nil, fmt.Errorf("%s: not a TIFF file", filename)
	}

	tiffTIFF, err := tiff.Parse(f.file, tiff.GetTagSpace("GeoTIFF"), nil)
	if err != nil {
		return nil, err
	}

	// Cloud optimized GeoTIFFs store overviews in subsequent IFDs.
	if len(tiffTIFF.IFDs()) == 0 {
		return nil, fmt.Errorf("%s: no IFDs", filename)
	}

	var ifd geoTIFFIFD
	if err := tiff.UnmarshalIFD(tiffTIFF.IFDs()[0], &ifd); err != nil {
		return nil, err
	}

	if ifd.BitsPerSample != 32 ||
		(ifd.Compression != compressionLZW && ifd.Compression != compressionDeflate && ifd.Compression != compressionAdobeDeflate) ||
		ifd.PhotometricInterpretation != 1 ||
		ifd.SamplesPerPixel != 1 ||
		(ifd.PlanarConfiguration != 0 && ifd.PlanarConfiguration != 1) ||
		(ifd.Predictor != 0 && ifd.Predictor != predictorNone && ifd.Predictor != predictorFloatingPoint) ||
		ifd.SampleFormat != 3 ||
		ifd.ImageWidth == 0 || ifd.ImageLength == 0 ||
		ifd.TileWidth == 0 || ifd.TileLength == 0 ||
		len(ifd.ModelPixelScaleTag) != 3 ||
		len(ifd.ModelTiepointTag) != 6 || ifd.ModelTiepointTag[2] != 0 || ifd.ModelTiepointTag[5] != 0 {
		return nil, errors.ErrUnsupported
	}
	f.compression = int(ifd.Compression)
	f.predictor = max(int(ifd.Predictor), predictorNone)

	f.imageWidth = int(ifd.ImageWidth)
	f.imageLength = int(ifd.ImageLength)
	f.tileWidth = int(ifd.TileWidth)
	f.tileLength = int(ifd.TileLength)
	f.tilesAcross = (f.imageWidth + f.tileWidth - 1) / f.tileWidth
	f.tilesDown = (f.imageLength + f.tileLength - 1) / f.tileLength
	tilesPerImage := f.tilesAcross * f.tilesDown
	if len(ifd.TileByteCounts) != tilesPerImage || len(ifd.TileOffsets) != tilesPerImage {
		return nil, errors.New("incorrect number of tile byte counts or offsets")
	}
	f.tileOffsets = ifd.TileOffsets
	f.tileByteCounts = ifd.TileByteCounts
	f.smallestTileByteCount = slices.Min(ifd.TileByteCounts)
	f.tileSampleCount = f.tileWidth * f.tileLength
	f.tileByteCountUncompressed = f.tileSampleCount * int(ifd.BitsPerSample) / 8

	tileCacheCount := max(f.tileCacheSizeBytes/f.tileByteCountUncompressed, 1)
	f.tileSamplesCache, err = otter.New(&otter.Options[TileCoord, []float32]{
		MaximumSize: tileCacheCount,
	})
	if err != nil {
		return nil, err
	}

	pixelIsPoint := false
	if len(ifd.GeoKeyDirectoryTag) != 0 {
		geoKeys, err := ParseGeoKeys(ifd.GeoKeyDirectoryTag, ifd.GeoDoubleParamsTag, []byte(ifd.GeoASCIIParamsTag))
		if err != nil {
			return nil, err
		}
		if geoKeys.Params[GeoKeyGTModelType] == modelTypeProjected {
			return nil, fmt.Errorf("%s: projected CRS: %w", filename, errors.ErrUnsupported)
		}
		f.srid = geoKeys.Params[GeoKeyGeodeticCRS]
		pixelIsPoint = geoKeys.PixelIsPoint()
	}

	// The tie point maps raster pixel (i, j) to model coordinate (x, y).
	scaleX, scaleY := ifd.ModelPixelScaleTag[0], ifd.ModelPixelScaleTag[1]
	i, j := ifd.ModelTiepointTag[0], ifd.ModelTiepointTag[1]
	x, y := ifd.ModelTiepointTag[3], ifd.ModelTiepointTag[4]
	f.geoTransform = GeoTransform{
		x - i*scaleX, scaleX, 0,
		y + j*scaleY, 0, -scaleY,
	}
	if pixelIsPoint {
		// Move the origin from the center to the corner of the first pixel.
		f.geoTransform[0] -= scaleX / 2
		f.geoTransform[3] += scaleY / 2
	}

	if noData := strings.Trim(ifd.GDALNoData, " \x00"); noData != "" {
		value, err := strconv.ParseFloat(noData, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: GDAL_NODATA: %w", filename, err)
		}
		// Samples are float32 so compare against the float32 sentinel.
		f.noData = float64(float32(value))
		f.hasNoData = true
	}

	ok = true
	return f, nil
}

func WithTileCacheSize(tileCacheSize int) GeoTIFFTileOption {
	return func(f *GeoTIFFTile) {
		f.tileCacheSizeBytes = tileCacheSize
	}
}

func (f *GeoTIFFTile) Close() error {
	return f.file.Close()
}

// GeoTransform returns f's pixel to geographic transform.
func (f *GeoTIFFTile) GeoTransform() GeoTransform {
	return f.geoTransform
}

// Size returns f's width and height in pixels.
func (f *GeoTIFFTile) Size() (int, int) {
	return f.imageWidth, f.imageLength
}

// NoData returns f's no-data sentinel, if any.
func (f *GeoTIFFTile) NoData() (float64, bool) {
	return f.noData, f.hasNoData
}

// SRID returns the EPSG code of f's geodetic CRS, or zero if unknown.
func (f *GeoTIFFTile) SRID() int {
	return f.srid
}

// Sample returns the sample at the pixel coord. Missing samples are
// represented by NaNs.
func (f *GeoTIFFTile) Sample(ctx context.Context, coord Coord) (float64, error) {
	localTileCoord, ok := f.localTileCoord(coord)
	if !ok {
		return math.NaN(), nil
	}
	switch tileSamples, err := f.getTileSamplesCached(ctx, localTileCoord); {
	case errors.Is(err, otter.ErrNotFound):
		return math.NaN(), nil
	case err != nil:
		return 0, err
	default:
		sample := f.tileSample(tileSamples, coord)
		if f.IsNoData(sample) {
			return math.NaN(), nil
		}
		return sample, nil
	}
}

// Samples returns the samples at coords, loading each tile at most once.
// Missing samples are represented by NaNs.
func (f *GeoTIFFTile) Samples(ctx context.Context, coords []Coord) ([]float64, error) {
	samples := make([]float64, len(coords))

	indexesByLocalTileCoord := make(map[TileCoord][]int)
	for index, coord := range coords {
		localTileCoord, ok := f.localTileCoord(coord)
		if !ok {
			samples[index] = math.NaN()
			continue
		}
		indexesByLocalTileCoord[localTileCoord] = append(indexesByLocalTileCoord[localTileCoord], index)
	}

	for localTileCoord, indexes := range indexesByLocalTileCoord {
		switch tileSamples, err := f.getTileSamplesCached(ctx, localTileCoord); {
		case errors.Is(err, otter.ErrNotFound):
			for _, index := range indexes {
				samples[index] = math.NaN()
			}
		case err != nil:
			return nil, err
		default:
			for _, index := range indexes {
				sample := f.tileSample(tileSamples, coords[index])
				if f.IsNoData(sample) {
					sample = math.NaN()
				}
				samples[index] = sample
			}
		}
	}

	return samples, nil
}

// IsNoData returns whether sample is f's no-data sentinel.
func (f *GeoTIFFTile) IsNoData(sample float64) bool {
	return f.hasNoData && sample == f.noData
}

// ReadWindow returns the samples of window, taking every stride-th sample
// along each axis. No-data samples are returned as the no-data sentinel, or
// NaN if f has none. It returns ErrWindowOutOfBounds if window is not
// entirely within f.
func (f *GeoTIFFTile) ReadWindow(ctx context.Context, window PixelWindow, stride int) ([][]float64, error) {
	if stride < 1 {
		return nil, fmt.Errorf("stride %d: %w", stride, ErrInvalidRequest)
	}
	if window.Width < 1 || window.Height < 1 || !window.Contains(f.imageWidth, f.imageLength) {
		return nil, fmt.Errorf("%s in %dx%d: %w", window, f.imageWidth, f.imageLength, ErrWindowOutOfBounds)
	}

	missing := math.NaN()
	if f.hasNoData {
		missing = f.noData
	}

	rows := strided(window.Height, stride)
	cols := strided(window.Width, stride)
	flat := make([]float64, rows*cols)
	samples := make([][]float64, rows)

	var (
		currentTileCoord TileCoord
		currentSamples   []float32
		haveTile         bool
	)
	for r := range rows {
		samples[r] = flat[r*cols : (r+1)*cols]
		for c := range cols {
			coord := Coord{
				X: window.OffsetX + c*stride,
				Y: window.OffsetY + r*stride,
			}
			localTileCoord, _ := f.localTileCoord(coord)
			if !haveTile || localTileCoord != currentTileCoord {
				tileSamples, err := f.getTileSamplesCached(ctx, localTileCoord)
				switch {
				case errors.Is(err, otter.ErrNotFound):
					tileSamples = nil
				case err != nil:
					return nil, err
				}
				currentTileCoord, currentSamples, haveTile = localTileCoord, tileSamples, true
			}
			if currentSamples == nil {
				samples[r][c] = missing
			} else {
				samples[r][c] = f.tileSample(currentSamples, coord)
			}
		}
	}

	return samples, nil
}

// getCompressedTileData returns the compressed tile data for the data at
// localTileCoord. If the tile is known to be empty, it returns the error
// otter.ErrNotFound.
func (f *GeoTIFFTile) getCompressedTileData(localTileCoord TileCoord) ([]byte, error) {
	tileIndex := localTileCoord.C + f.tilesAcross*localTileCoord.R
	tileByteCount := f.tileByteCounts[tileIndex]
	tileOffset := f.tileOffsets[tileIndex]
	if tileByteCount == 0 {
		// Sparse tile.
		return nil, otter.ErrNotFound
	}
	compressedData := make([]byte, tileByteCount)
	switch n, err := f.file.ReadAt(compressedData, int64(tileOffset)); {
	case err != nil && !(errors.Is(err, io.EOF) && n == int(tileByteCount)):
		return nil, err
	case n != int(tileByteCount):
		return nil, errShortRead
	case f.emptyTileBytes != nil && bytes.Equal(compressedData, f.emptyTileBytes):
		return nil, otter.ErrNotFound
	default:
		return compressedData, nil
	}
}

// decompressTileData decompresses the tile data in compressedData.
func (f *GeoTIFFTile) decompressTileData(compressedData []byte) ([]byte, error) {
	var r io.Reader
	switch f.compression {
	case compressionLZW:
		r = lzw.NewReader(bytes.NewReader(compressedData), lzw.MSB, 8)
	default:
		zr, err := zlib.NewReader(bytes.NewReader(compressedData))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	}
	tileData := make([]byte, f.tileByteCountUncompressed)
	if _, err := io.ReadFull(r, tileData); err != nil {
		return nil, err
	}
	return tileData, nil
}

// decodeTileData decodes tileData.
func (f *GeoTIFFTile) decodeTileData(tileData []byte) []float32 {
	tileSamples := make([]float32, f.tileSampleCount)
	if f.predictor == predictorFloatingPoint {
		decodeFloatingPointPredictor(tileData, tileSamples, f.tileWidth)
		return tileSamples
	}
	for i := range f.tileSampleCount {
		b := f.byteOrder.Uint32(tileData[i*4 : (i+1)*4])
		tileSamples[i] = math.Float32frombits(b)
	}
	return tileSamples
}

// decodeFloatingPointPredictor reverses the TIFF floating point predictor.
// Each row is byte-wise horizontally differenced and stores the most
// significant bytes of all samples first.
func decodeFloatingPointPredictor(tileData []byte, tileSamples []float32, width int) {
	rowBytes := 4 * width
	for rowStart := 0; rowStart+rowBytes <= len(tileData); rowStart += rowBytes {
		row := tileData[rowStart : rowStart+rowBytes]
		for i := 1; i < len(row); i++ {
			row[i] += row[i-1]
		}
		samples := tileSamples[rowStart/4 : rowStart/4+width]
		for i := range samples {
			b := uint32(row[i])<<24 |
				uint32(row[width+i])<<16 |
				uint32(row[2*width+i])<<8 |
				uint32(row[3*width+i])
			samples[i] = math.Float32frombits(b)
		}
	}
}

// getTileSamples returns the tile samples at localTileCoord.
func (f *GeoTIFFTile) getTileSamples(ctx context.Context, localTileCoord TileCoord) ([]float32, error) {
	// Retrieve the compressed tile data.
	compressedTileData, err := f.getCompressedTileData(localTileCoord)
	if err != nil {
		return nil, err
	}

	// Decompress the tile data and decode it.
	tileData, err := f.decompressTileData(compressedTileData)
	if err != nil {
		return nil, err
	}
	tileSamples := f.decodeTileData(tileData)

	// If we do not know what an empty tile looks like compressed, check to see
	// if this is an empty tile, and, if so, use its bytes to detect empty tiles
	// before they are decompressed. We assume that the empty tile is the
	// smallest tile.
	if f.hasNoData && f.emptyTileBytes == nil && len(compressedTileData) == int(f.smallestTileByteCount) {
		noData := float32(f.noData)
		isEmptyTile := true
		for _, sample := range tileSamples {
			if sample != noData {
				isEmptyTile = false
				break
			}
		}
		if isEmptyTile {
			f.emptyTileBytes = compressedTileData
			return nil, otter.ErrNotFound
		}
	}

	return tileSamples, nil
}

// getTileSamplesCached returns the tile at localTileCoord using f's cache.
func (f *GeoTIFFTile) getTileSamplesCached(ctx context.Context, localTileCoord TileCoord) ([]float32, error) {
	return f.tileSamplesCache.Get(ctx, localTileCoord, otter.LoaderFunc[TileCoord, []float32](f.getTileSamples))
}

// localTileCoord returns the local tile coord for a given pixel coordinate.
func (f *GeoTIFFTile) localTileCoord(coord Coord) (TileCoord, bool) {
	if coord.X < 0 || f.imageWidth <= coord.X || coord.Y < 0 || f.imageLength <= coord.Y {
		return TileCoord{}, false
	}
	return TileCoord{
		C: coord.X / f.tileWidth,
		R: coord.Y / f.tileLength,
	}, true
}

// tileSample returns the sample from tileSamples at coord.
func (f *GeoTIFFTile) tileSample(tileSamples []float32, coord Coord) float64 {
	return float64(tileSamples[coord.X%f.tileWidth+(coord.Y%f.tileLength)*f.tileWidth])
}
