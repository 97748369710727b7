package tiersearch

import (
	"encoding/binary"
	"fmt"
)

const (
	segmentRootMagic   uint32 = 0x54505347 // "TPSG"
	segmentRootVersion uint32 = 1

	dictEntrySize = 32
	skipEntrySize = 17 // first_doc_id u32, last_doc_id u32, doc_count u16, block_max_tf u16, block_min_norm u8, posting_offset u32
	postEntrySize = 6  // doc_id u32, frequency u16

	postingBlockSize = 128 // default posts per block, §6.8
)

// dictionaryEntry is the fixed 32-byte, 8-byte aligned dictionary row from
// §6.3.
type dictionaryEntry struct {
	TermHash         uint32
	StringOffset     uint32
	StringLen        uint32
	PostingOffset    uint32
	SkipIndexOffset  uint32
	BlockCount       uint16
	DocFreq          uint32
	Reserved         uint16
}

func (e dictionaryEntry) encode() []byte {
	buf := make([]byte, dictEntrySize)
	binary.LittleEndian.PutUint32(buf[0:4], e.TermHash)
	binary.LittleEndian.PutUint32(buf[4:8], e.StringOffset)
	binary.LittleEndian.PutUint32(buf[8:12], e.StringLen)
	binary.LittleEndian.PutUint32(buf[12:16], e.PostingOffset)
	binary.LittleEndian.PutUint32(buf[16:20], e.SkipIndexOffset)
	binary.LittleEndian.PutUint16(buf[20:22], e.BlockCount)
	binary.LittleEndian.PutUint32(buf[22:26], e.DocFreq)
	binary.LittleEndian.PutUint16(buf[26:28], e.Reserved)
	// bytes 28..32 pad to the 32-byte, 8-byte aligned row size.
	return buf
}

func decodeDictionaryEntry(buf []byte) dictionaryEntry {
	return dictionaryEntry{
		TermHash:        binary.LittleEndian.Uint32(buf[0:4]),
		StringOffset:    binary.LittleEndian.Uint32(buf[4:8]),
		StringLen:       binary.LittleEndian.Uint32(buf[8:12]),
		PostingOffset:   binary.LittleEndian.Uint32(buf[12:16]),
		SkipIndexOffset: binary.LittleEndian.Uint32(buf[16:20]),
		BlockCount:      binary.LittleEndian.Uint16(buf[20:22]),
		DocFreq:         binary.LittleEndian.Uint32(buf[22:26]),
		Reserved:        binary.LittleEndian.Uint16(buf[26:28]),
	}
}

// skipEntry is one posting-block's skip metadata (§6.4), enabling BMW
// block-level pruning without reading the block itself.
type skipEntry struct {
	FirstDocID    uint32
	LastDocID     uint32
	DocCount      uint16
	BlockMaxTF    uint16
	BlockMinNorm  uint8
	PostingOffset uint32
}

func (e skipEntry) encode() []byte {
	buf := make([]byte, skipEntrySize)
	binary.LittleEndian.PutUint32(buf[0:4], e.FirstDocID)
	binary.LittleEndian.PutUint32(buf[4:8], e.LastDocID)
	binary.LittleEndian.PutUint16(buf[8:10], e.DocCount)
	binary.LittleEndian.PutUint16(buf[10:12], e.BlockMaxTF)
	buf[12] = e.BlockMinNorm
	binary.LittleEndian.PutUint32(buf[13:17], e.PostingOffset)
	return buf
}

func decodeSkipEntry(buf []byte) skipEntry {
	return skipEntry{
		FirstDocID:    binary.LittleEndian.Uint32(buf[0:4]),
		LastDocID:     binary.LittleEndian.Uint32(buf[4:8]),
		DocCount:      binary.LittleEndian.Uint16(buf[8:10]),
		BlockMaxTF:    binary.LittleEndian.Uint16(buf[10:12]),
		BlockMinNorm:  buf[12],
		PostingOffset: binary.LittleEndian.Uint32(buf[13:17]),
	}
}

// postingEntry is one packed (doc_id, frequency) row within a block (§6.5).
// doc_id is segment-local and strictly ascending within its block.
type postingEntry struct {
	DocID     uint32
	Frequency uint16
}

func (e postingEntry) encode() []byte {
	buf := make([]byte, postEntrySize)
	binary.LittleEndian.PutUint32(buf[0:4], e.DocID)
	binary.LittleEndian.PutUint16(buf[4:6], e.Frequency)
	return buf
}

func decodePostingEntry(buf []byte) postingEntry {
	return postingEntry{
		DocID:     binary.LittleEndian.Uint32(buf[0:4]),
		Frequency: binary.LittleEndian.Uint16(buf[4:6]),
	}
}

// segmentHeader is the root page's logical header (§6.2): section
// offsets/sizes plus level-chain linkage. Encoded at the start of the
// segment's root block, ahead of the inline page map; the section offsets
// are logical offsets into the paged body that the page map addresses.
type segmentHeader struct {
	Magic           uint32
	Version         uint32
	Level           uint32
	NextSegment     BlockNumber
	NumTerms        uint32
	NumDocs         uint32
	TotalDocLength  uint64
	CreatedAt       int64

	DictOffset   uint64
	DictSize     uint64
	StringOffset uint64
	StringSize   uint64
	SkipOffset   uint64
	SkipSize     uint64
	PostOffset   uint64
	PostSize     uint64
	NormOffset   uint64
	NormSize     uint64
	DocRefOffset uint64
	DocRefSize   uint64

	PageMapOffset uint64
	PageMapCount  uint32
}

const segmentHeaderSize = 4 + 4 + 4 + 4 + 4 + 4 + 8 + 8 + // fixed scalars
	8*12 + // 6 offset/size pairs of uint64
	8 + 4 // page map offset + count

func (h segmentHeader) encode() []byte {
	buf := make([]byte, segmentHeaderSize)
	o := 0
	putU32 := func(v uint32) { binary.LittleEndian.PutUint32(buf[o:o+4], v); o += 4 }
	putU64 := func(v uint64) { binary.LittleEndian.PutUint64(buf[o:o+8], v); o += 8 }
	putI64 := func(v int64) { binary.LittleEndian.PutUint64(buf[o:o+8], uint64(v)); o += 8 }

	putU32(h.Magic)
	putU32(h.Version)
	putU32(h.Level)
	putU32(uint32(h.NextSegment))
	putU32(h.NumTerms)
	putU32(h.NumDocs)
	putU64(h.TotalDocLength)
	putI64(h.CreatedAt)

	putU64(h.DictOffset)
	putU64(h.DictSize)
	putU64(h.StringOffset)
	putU64(h.StringSize)
	putU64(h.SkipOffset)
	putU64(h.SkipSize)
	putU64(h.PostOffset)
	putU64(h.PostSize)
	putU64(h.NormOffset)
	putU64(h.NormSize)
	putU64(h.DocRefOffset)
	putU64(h.DocRefSize)

	putU64(h.PageMapOffset)
	putU32(h.PageMapCount)
	return buf
}

func decodeSegmentHeader(buf []byte, blk BlockNumber) (segmentHeader, error) {
	if len(buf) < segmentHeaderSize {
		return segmentHeader{}, NewCorruptError(uint32(blk), fmt.Errorf("segment root page too short"))
	}
	o := 0
	getU32 := func() uint32 { v := binary.LittleEndian.Uint32(buf[o : o+4]); o += 4; return v }
	getU64 := func() uint64 { v := binary.LittleEndian.Uint64(buf[o : o+8]); o += 8; return v }
	getI64 := func() int64 { v := int64(binary.LittleEndian.Uint64(buf[o : o+8])); o += 8; return v }

	var h segmentHeader
	h.Magic = getU32()
	if h.Magic != segmentRootMagic {
		return segmentHeader{}, NewCorruptError(uint32(blk), fmt.Errorf("bad segment magic %#x", h.Magic))
	}
	h.Version = getU32()
	if h.Version != segmentRootVersion {
		return segmentHeader{}, NewCorruptError(uint32(blk), fmt.Errorf("unsupported segment version %d", h.Version))
	}
	h.Level = getU32()
	h.NextSegment = BlockNumber(getU32())
	h.NumTerms = getU32()
	h.NumDocs = getU32()
	h.TotalDocLength = getU64()
	h.CreatedAt = getI64()

	h.DictOffset = getU64()
	h.DictSize = getU64()
	h.StringOffset = getU64()
	h.StringSize = getU64()
	h.SkipOffset = getU64()
	h.SkipSize = getU64()
	h.PostOffset = getU64()
	h.PostSize = getU64()
	h.NormOffset = getU64()
	h.NormSize = getU64()
	h.DocRefOffset = getU64()
	h.DocRefSize = getU64()

	h.PageMapOffset = getU64()
	h.PageMapCount = getU32()
	return h, nil
}

// quantizeNorm implements §4.4 step 2's SmallFloat scheme: norm = (1 +
// mantissa/8) · 2^exponent, mantissa ∈ [0,7], exponent ∈ [0,31], packed
// into a single byte (3 bits mantissa, 5 bits exponent). Lossy but
// monotone (§8.1 invariant 9).
func quantizeNorm(length int32) byte {
	if length <= 0 {
		return 0
	}
	v := float64(length)
	exponent := 0
	for v >= 2.0 && exponent < 31 {
		v /= 2.0
		exponent++
	}
	for v < 1.0 && exponent > 0 {
		v *= 2.0
		exponent--
	}
	mantissa := int((v - 1.0) * 8.0)
	if mantissa < 0 {
		mantissa = 0
	}
	if mantissa > 7 {
		mantissa = 7
	}
	return byte(exponent<<3) | byte(mantissa)
}

// dequantizeNorm inverts quantizeNorm, lossily but monotonically.
func dequantizeNorm(b byte) float64 {
	exponent := uint(b >> 3)
	mantissa := float64(b & 0x07)
	return (1.0 + mantissa/8.0) * float64(uint32(1)<<exponent)
}
