package textures

import (
	"fmt"
	"hash/fnv"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

type SourceKind uint8

const (
	SourceFilePath SourceKind = iota
	SourceBytes
)

// ChannelsHint narrows the uploaded format when a texture needs fewer
// channels, e.g. RG for normal maps.
type ChannelsHint uint8

const (
	ChannelsAuto ChannelsHint = iota
	ChannelsR
	ChannelsRG
	ChannelsRGBA
)

// Mixed into the hash of byte sources requested as sRGB.
const srgbSalt = 0x9E3779B97F4A7C15

// Key identifies a texture independently of how consumers name it.
type Key struct {
	Kind      SourceKind
	Path      string
	Bytes     []byte
	SRGB      bool
	Mipmapped bool
	Channels  ChannelsHint
	// MipClampLevels limits the generated chain; zero keeps every level.
	MipClampLevels uint32
	// Hash deduplicates requests. Zero means derive it from the source.
	Hash uint64
}

// PathKey keys a mipmapped texture loaded from a file.
func PathKey(path string, srgb bool) Key {
	return Key{Kind: SourceFilePath, Path: path, SRGB: srgb, Mipmapped: true}
}

// BytesKey keys a mipmapped texture decoded from an encoded blob.
func BytesKey(data []byte, srgb bool) Key {
	return Key{Kind: SourceBytes, Bytes: data, SRGB: srgb, Mipmapped: true}
}

func fnv1a64(data []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(data)
	return h.Sum64()
}

// Digest returns the dedup hash: FNV-1a over "PATH:<path>#sRGB|#UNORM" for
// files, over the content for blobs with the sRGB salt mixed in.
func (k Key) Digest() uint64 {
	if k.Hash != 0 {
		return k.Hash
	}
	switch k.Kind {
	case SourceFilePath:
		suffix := "#UNORM"
		if k.SRGB {
			suffix = "#sRGB"
		}
		return fnv1a64([]byte("PATH:" + k.Path + suffix))
	default:
		if len(k.Bytes) == 0 {
			return 0
		}
		h := fnv1a64(k.Bytes)
		if k.SRGB {
			h ^= srgbSalt
		}
		return h
	}
}

func (k Key) name() string {
	if k.Kind == SourceFilePath {
		return k.Path
	}
	return fmt.Sprintf("<bytes> (%d)", len(k.Bytes))
}

// format picks the upload format for a channel hint.
func format(hint ChannelsHint, srgb bool) gpu.Format {
	switch hint {
	case ChannelsR:
		if srgb {
			return gpu.FormatR8Srgb
		}
		return gpu.FormatR8Unorm
	case ChannelsRG:
		if srgb {
			return gpu.FormatR8G8Srgb
		}
		return gpu.FormatR8G8Unorm
	default:
		if srgb {
			return gpu.FormatR8G8B8A8Srgb
		}
		return gpu.FormatR8G8B8A8Unorm
	}
}

// mipFactor is the area of an L level chain relative to its base level.
func mipFactor(levels uint32) float64 {
	if levels <= 1 {
		return 1
	}
	q := 1.0
	for i := uint32(0); i < levels; i++ {
		q *= 0.25
	}
	return 4.0 / 3.0 * (1 - q)
}

// residentBytes estimates the VRAM cost of a w x h image.
func residentBytes(w, h uint32, f gpu.Format, levels uint32) uint64 {
	bpp := f.BytesPerPixel()
	if bpp == 0 {
		bpp = 4
	}
	return uint64(float64(uint64(w)*uint64(h)*uint64(bpp)) * mipFactor(levels))
}
