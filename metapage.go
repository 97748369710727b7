package tiersearch

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	metapageMagic   uint32 = 0x5450494D // "TPIM"
	metapageVersion uint32 = 4

	// Lmax is the maximum LSM level count (§6.8).
	Lmax = 8
	// DefaultFanout is the default per-level segment fanout K (§6.8).
	DefaultFanout = 8
	// DefaultSpillThreshold is memtable_spill_threshold (§6.8).
	DefaultSpillThreshold = 800_000
	// DefaultBulkLoadThreshold is bulk_load_threshold (§6.8).
	DefaultBulkLoadThreshold = 100_000
	// DefaultQueryLimit and MaxQueryLimit bound an unspecified/oversized LIMIT.
	DefaultQueryLimit = 1_000
	MaxQueryLimit     = 100_000
	// DefaultPostingBlockSize is posting_block_size (§6.8), mirrored from
	// segmentformat.go's postingBlockSize to keep the metapage-facing name
	// spec.md uses available to callers configuring a build.
	DefaultPostingBlockSize = postingBlockSize

	metapageSize = 4 + 4 + 4 + 8 + 8 + 8 + 4 + 4 + 4 + 4 + Lmax*4 + Lmax*2
)

// Metapage is block 0 of an index (§3 "Index", §6.1). It is the single
// source of truth for level heads and corpus totals; segment bodies are
// immutable (§3 invariant 1).
type Metapage struct {
	TokenizerConfigID uint32
	TotalDocs         uint64 // N
	TotalTerms        uint64 // best-effort, Open Question 4
	TotalLen          uint64 // L_sum
	K1                float32
	B                 float32
	FirstDocidPage    BlockNumber
	LevelHeads        [Lmax]BlockNumber
	LevelCounts       [Lmax]uint16
}

// NewMetapage returns a freshly initialized metapage with empty level
// chains, per §4.9 "Initialize metapage with magic/version and empty level
// chains."
func NewMetapage(tokenizerConfigID uint32, k1, b float32) *Metapage {
	mp := &Metapage{
		TokenizerConfigID: tokenizerConfigID,
		K1:                k1,
		B:                 b,
		FirstDocidPage:    NullBlock,
	}
	for i := range mp.LevelHeads {
		mp.LevelHeads[i] = NullBlock
	}
	return mp
}

func (mp *Metapage) encode() []byte {
	buf := make([]byte, PageSize)
	o := 0
	putU32 := func(v uint32) { binary.LittleEndian.PutUint32(buf[o:o+4], v); o += 4 }
	putU64 := func(v uint64) { binary.LittleEndian.PutUint64(buf[o:o+8], v); o += 8 }

	putU32(metapageMagic)
	putU32(metapageVersion)
	putU32(mp.TokenizerConfigID)
	putU64(mp.TotalDocs)
	putU64(mp.TotalTerms)
	putU64(mp.TotalLen)
	putU32(math.Float32bits(mp.K1))
	putU32(math.Float32bits(mp.B))
	putU32(uint32(0)) // root_blkno, reserved
	putU32(uint32(mp.FirstDocidPage))
	for _, h := range mp.LevelHeads {
		putU32(uint32(h))
	}
	for _, c := range mp.LevelCounts {
		binary.LittleEndian.PutUint16(buf[o:o+2], c)
		o += 2
	}
	return buf
}

func decodeMetapage(buf []byte) (*Metapage, error) {
	if len(buf) != PageSize {
		return nil, NewCorruptError(0, fmt.Errorf("short metapage"))
	}
	o := 0
	getU32 := func() uint32 { v := binary.LittleEndian.Uint32(buf[o : o+4]); o += 4; return v }
	getU64 := func() uint64 { v := binary.LittleEndian.Uint64(buf[o : o+8]); o += 8; return v }

	magic := getU32()
	if magic != metapageMagic {
		return nil, NewCorruptError(0, fmt.Errorf("bad metapage magic %#x, code expects %#x", magic, metapageMagic))
	}
	version := getU32()
	if version != metapageVersion {
		return nil, NewCorruptError(0, fmt.Errorf("unsupported metapage version %d, code expects %d", version, metapageVersion))
	}

	mp := &Metapage{}
	mp.TokenizerConfigID = getU32()
	mp.TotalDocs = getU64()
	mp.TotalTerms = getU64()
	mp.TotalLen = getU64()
	mp.K1 = math.Float32frombits(getU32())
	mp.B = math.Float32frombits(getU32())
	_ = getU32() // root_blkno, reserved
	mp.FirstDocidPage = BlockNumber(getU32())
	for i := range mp.LevelHeads {
		mp.LevelHeads[i] = BlockNumber(getU32())
	}
	for i := range mp.LevelCounts {
		mp.LevelCounts[i] = binary.LittleEndian.Uint16(buf[o : o+2])
		o += 2
	}
	return mp, nil
}

// Load reads and validates the metapage from block 0 of store. Magic and
// version mismatch is fatal per §3's invariant on the metapage.
func LoadMetapage(store PageStore) (*Metapage, error) {
	buf := make([]byte, PageSize)
	if err := store.Read(BlockNumber(0), buf); err != nil {
		return nil, err
	}
	return decodeMetapage(buf)
}

// Save flushes the metapage to block 0, per §5 "page is flushed (not just
// dirtied) on every metadata-advancing write to guarantee crash-recovery
// correctness."
func (mp *Metapage) Save(store PageStore) error {
	if err := store.Write(BlockNumber(0), mp.encode()); err != nil {
		return err
	}
	return store.Flush(BlockNumber(0))
}

// AvgDocLength returns L_sum/N, or 0 if N is 0.
func (mp *Metapage) AvgDocLength() float64 {
	if mp.TotalDocs == 0 {
		return 0
	}
	return float64(mp.TotalLen) / float64(mp.TotalDocs)
}
