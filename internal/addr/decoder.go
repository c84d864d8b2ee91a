// Package addr derives a cache's geometry from its construction parameters
// and decodes 32-bit addresses against that geometry.
package addr

import (
	"fmt"
	"math/bits"
)

// Geometry holds the immutable parameters of one cache level together with
// the bit-field widths derived from them.
type Geometry struct {
	BlockSize uint32
	Size      uint32
	Assoc     uint32

	NumSets    uint32
	OffsetBits uint32
	IndexBits  uint32
	TagBits    uint32
}

// ConfigError reports an inconsistent cache geometry. It is returned only
// at construction time; the access path never produces it.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "cache config error: " + e.Reason
}

func isPowerOfTwo(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}

// NewGeometry validates blocksize/size/assoc and derives the remaining
// fields, per spec §3.
func NewGeometry(blocksize, size, assoc uint32) (Geometry, error) {
	if !isPowerOfTwo(blocksize) || blocksize < 4 {
		return Geometry{}, &ConfigError{
			Reason: fmt.Sprintf("blocksize %d must be a power of two >= 4", blocksize),
		}
	}
	if !isPowerOfTwo(size) {
		return Geometry{}, &ConfigError{
			Reason: fmt.Sprintf("size %d must be a power of two", size),
		}
	}
	if assoc == 0 {
		return Geometry{}, &ConfigError{Reason: "assoc must be >= 1"}
	}

	setBytes := blocksize * assoc
	if setBytes == 0 || size%setBytes != 0 {
		return Geometry{}, &ConfigError{
			Reason: fmt.Sprintf(
				"assoc %d does not evenly divide size/blocksize (%d/%d)",
				assoc, size, blocksize),
		}
	}

	numSets := size / setBytes
	if !isPowerOfTwo(numSets) {
		return Geometry{}, &ConfigError{
			Reason: fmt.Sprintf("derived num_sets %d is not a power of two", numSets),
		}
	}

	offsetBits := uint32(bits.TrailingZeros32(blocksize))
	indexBits := uint32(bits.TrailingZeros32(numSets))
	tagBits := 32 - offsetBits - indexBits

	return Geometry{
		BlockSize:  blocksize,
		Size:       size,
		Assoc:      assoc,
		NumSets:    numSets,
		OffsetBits: offsetBits,
		IndexBits:  indexBits,
		TagBits:    tagBits,
	}, nil
}

// Address is the decomposition of a 32-bit byte address under a Geometry.
type Address struct {
	Offset uint32
	Index  uint32
	Tag    uint32
	Block  uint32
}

// Decode splits addr into offset/index/tag/block fields, per spec §4.1.
func (g Geometry) Decode(addr uint32) Address {
	block := addr >> g.OffsetBits

	return Address{
		Offset: addr % g.BlockSize,
		Index:  block % g.NumSets,
		Tag:    addr >> (g.OffsetBits + g.IndexBits),
		Block:  block,
	}
}

// EvictedAddr reconstructs the block-aligned address for a (tag, index)
// pair, per spec §4.2. The offset bits are always zero — this is the
// canonical, intentional convention spec §9 calls out.
func (g Geometry) EvictedAddr(tag, index uint32) uint32 {
	return (tag << (g.IndexBits + g.OffsetBits)) | (index << g.OffsetBits)
}

// BlockAddrToAddr converts a block address back into a byte address with a
// zero offset, used when issuing demand/prefetch reads to a lower level.
func (g Geometry) BlockAddrToAddr(blockAddr uint32) uint32 {
	return blockAddr << g.OffsetBits
}
