package textures

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var errNoSource = errors.New("texture has no source")

type decodeRequest struct {
	handle     Handle
	generation uint32
	kind       SourceKind
	path       string
	data       []byte
	channels   ChannelsHint
	maxDim     uint32
}

// decoded is a tightly packed 8 bit image ready for upload, or the reason it
// could not be produced.
type decoded struct {
	handle     Handle
	generation uint32
	width      uint32
	height     uint32
	pixels     []byte
	err        error
}

func (r decodeRequest) open() (io.ReadCloser, error) {
	switch {
	case r.kind == SourceFilePath && r.path != "":
		return os.Open(r.path)
	case r.kind == SourceBytes && len(r.data) > 0:
		return io.NopCloser(bytes.NewReader(r.data)), nil
	}
	return nil, errNoSource
}

// decodeImage runs on a decode worker. Images larger than maxDim on either
// axis are halved until they fit.
func decodeImage(req decodeRequest) (*decoded, error) {
	src, err := req.open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	img, kind, err := image.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("failed to decode texture: %w", err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%s texture has no pixels", kind)
	}

	rgba := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	rgba = downscale(rgba, req.maxDim)

	w, h := rgba.Bounds().Dx(), rgba.Bounds().Dy()
	return &decoded{
		handle:     req.handle,
		generation: req.generation,
		width:      uint32(w),
		height:     uint32(h),
		pixels:     pack(rgba.Pix, w*h, req.channels),
	}, nil
}

func downscale(img *image.NRGBA, maxDim uint32) *image.NRGBA {
	if maxDim == 0 {
		return img
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	for uint32(w) > maxDim || uint32(h) > maxDim {
		w = max(1, w/2)
		h = max(1, h/2)
		half := image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(half, half.Bounds(), img, img.Bounds(), draw.Src, nil)
		img = half
	}
	return img
}

// pack keeps the channels the hint asks for.
func pack(rgba []byte, texels int, hint ChannelsHint) []byte {
	var comps int
	switch hint {
	case ChannelsR:
		comps = 1
	case ChannelsRG:
		comps = 2
	default:
		return rgba
	}
	out := make([]byte, texels*comps)
	for i := 0; i < texels; i++ {
		copy(out[i*comps:(i+1)*comps], rgba[i*4:i*4+comps])
	}
	return out
}
