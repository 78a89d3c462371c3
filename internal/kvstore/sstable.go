package kvstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sort"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// zstd encoder/decoder are expensive to construct and safe for concurrent
// use, so the block codec shares one of each across every SSTable rather
// than building one per call.
var (
	zstdEncOnce sync.Once
	zstdEnc     *zstd.Encoder
	zstdDecOnce sync.Once
	zstdDec     *zstd.Decoder
)

func getZstdEncoder() *zstd.Encoder {
	zstdEncOnce.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic(err)
		}
		zstdEnc = enc
	})
	return zstdEnc
}

func getZstdDecoder() *zstd.Decoder {
	zstdDecOnce.Do(func() {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			panic(err)
		}
		zstdDec = dec
	})
	return zstdDec
}

// SSTable is the immutable on-disk(-ish) layout produced by Store.ExportAll:
// fixed-size blocks of (shared-prefix-length, suffix, value-length, value)
// records, a block index of (first-key, offset), and a footer with total
// size — 
const blockTargetSize = 4 << 10 // 4KiB blocks, in the spirit of a typical LSM page

type blockIndexEntry struct {
	firstKey []byte
	offset   int
	length   int
}

type SSTable struct {
	raw   []byte // full encoded table, blocks back to back
	index []blockIndexEntry
	id    uint64 // identity used as a block-cache key component
}

var sstableIDCounter uint64

// BuildSSTable encodes entries (already sorted, live only) into a fresh
// SSTable using prefix-compressed fixed-size blocks.
func BuildSSTable(entries []Entry) *SSTable {
	sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i].Key, entries[j].Key) < 0 })

	var raw bytes.Buffer
	var index []blockIndexEntry

	var blockBuf bytes.Buffer
	var blockFirstKey []byte
	var prevKey []byte

	flush := func() {
		if blockBuf.Len() == 0 {
			return
		}
		index = append(index, blockIndexEntry{
			firstKey: append([]byte(nil), blockFirstKey...),
			offset:   raw.Len(),
			length:   blockBuf.Len(),
		})
		raw.Write(blockBuf.Bytes())
		blockBuf.Reset()
		prevKey = nil
		blockFirstKey = nil
	}

	var tmp [binary.MaxVarintLen64]byte
	putUvarint := func(buf *bytes.Buffer, v uint64) {
		n := binary.PutUvarint(tmp[:], v)
		buf.Write(tmp[:n])
	}

	for _, e := range entries {
		if blockFirstKey == nil {
			blockFirstKey = e.Key
		}
		shared := sharedPrefixLen(prevKey, e.Key)
		suffix := e.Key[shared:]

		putUvarint(&blockBuf, uint64(shared))
		putUvarint(&blockBuf, uint64(len(suffix)))
		blockBuf.Write(suffix)
		putUvarint(&blockBuf, uint64(len(e.Value)))
		blockBuf.Write(e.Value)

		prevKey = e.Key
		if blockBuf.Len() >= blockTargetSize {
			flush()
		}
	}
	flush()

	sstableIDCounter++
	return &SSTable{raw: raw.Bytes(), index: index, id: sstableIDCounter}
}

func sharedPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// decodeBlock parses one block's records in order.
func decodeBlock(buf []byte) []Entry {
	var out []Entry
	var prevKey []byte
	for len(buf) > 0 {
		shared, n := binary.Uvarint(buf)
		buf = buf[n:]
		suffixLen, n2 := binary.Uvarint(buf)
		buf = buf[n2:]
		suffix := buf[:suffixLen]
		buf = buf[suffixLen:]
		valLen, n3 := binary.Uvarint(buf)
		buf = buf[n3:]
		val := buf[:valLen]
		buf = buf[valLen:]

		key := make([]byte, int(shared)+len(suffix))
		copy(key, prevKey[:shared])
		copy(key[shared:], suffix)

		out = append(out, Entry{Key: key, Value: val})
		prevKey = key
	}
	return out
}

// blockForKey finds the index of the block that may contain key (the last
// block whose firstKey <= key).
func (t *SSTable) blockForKey(key []byte) int {
	i := sort.Search(len(t.index), func(i int) bool {
		return bytes.Compare(t.index[i].firstKey, key) > 0
	})
	return i - 1
}

// Get looks up key, consulting the block cache when provided.
func (t *SSTable) Get(cache *BlockCache, key []byte) ([]byte, bool) {
	bi := t.blockForKey(key)
	if bi < 0 {
		return nil, false
	}
	entries := t.loadBlock(cache, bi)
	i := sort.Search(len(entries), func(i int) bool { return bytes.Compare(entries[i].Key, key) >= 0 })
	if i < len(entries) && bytes.Equal(entries[i].Key, key) {
		if len(entries[i].Value) == 0 {
			return nil, false
		}
		return entries[i].Value, true
	}
	return nil, false
}

// Scan returns live entries in [start,end) across every relevant block.
func (t *SSTable) Scan(cache *BlockCache, start, end []byte) []Entry {
	startBlock := 0
	if start != nil {
		if bi := t.blockForKey(start); bi > 0 {
			startBlock = bi
		}
	}
	var out []Entry
	for bi := startBlock; bi < len(t.index); bi++ {
		if end != nil && bytes.Compare(t.index[bi].firstKey, end) >= 0 {
			break
		}
		for _, e := range t.loadBlock(cache, bi) {
			if start != nil && bytes.Compare(e.Key, start) < 0 {
				continue
			}
			if end != nil && bytes.Compare(e.Key, end) >= 0 {
				continue
			}
			if len(e.Value) > 0 {
				out = append(out, e)
			}
		}
	}
	return out
}

func (t *SSTable) loadBlock(cache *BlockCache, bi int) []Entry {
	if cache != nil {
		if entries, ok := cache.Get(t.id, bi); ok {
			return entries
		}
	}
	blk := t.index[bi]
	entries := decodeBlock(t.raw[blk.offset : blk.offset+blk.length])
	if cache != nil {
		cache.Put(t.id, bi, entries, blk.length)
	}
	return entries
}

// Bytes returns the encoded table: zstd-compressed block data, block index,
// footer. Block bodies are compressed as a single frame rather than
// per-block, trading random-access granularity (ParseSSTable decompresses
// the whole blob once, up front) for a
// much better compression ratio on the shared-prefix-heavy key stream.
func (t *SSTable) Bytes() []byte {
	compressed := getZstdEncoder().EncodeAll(t.raw, nil)

	var out bytes.Buffer
	out.Write(compressed)

	indexStart := out.Len()
	var tmp [binary.MaxVarintLen64]byte
	putUvarint := func(v uint64) {
		n := binary.PutUvarint(tmp[:], v)
		out.Write(tmp[:n])
	}
	putUvarint(uint64(len(t.index)))
	for _, e := range t.index {
		putUvarint(uint64(len(e.firstKey)))
		out.Write(e.firstKey)
		putUvarint(uint64(e.offset))
		putUvarint(uint64(e.length))
	}

	var footer [24]byte
	binary.LittleEndian.PutUint64(footer[0:8], uint64(indexStart))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(out.Len()-indexStart))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(len(t.raw)))
	out.Write(footer[:])
	return out.Bytes()
}

// ParseSSTable decodes the Bytes() form back into an SSTable.
func ParseSSTable(buf []byte) (*SSTable, error) {
	if len(buf) < 24 {
		return nil, errors.New("kvstore: truncated sstable")
	}
	footer := buf[len(buf)-24:]
	indexStart := binary.LittleEndian.Uint64(footer[0:8])
	indexLen := binary.LittleEndian.Uint64(footer[8:16])
	rawLen := binary.LittleEndian.Uint64(footer[16:24])
	if int(indexStart+indexLen)+24 != len(buf) {
		return nil, errors.New("kvstore: corrupt sstable footer")
	}

	raw, err := getZstdDecoder().DecodeAll(buf[:indexStart], make([]byte, 0, rawLen))
	if err != nil {
		return nil, errors.New("kvstore: corrupt sstable block data: " + err.Error())
	}
	cursor := buf[indexStart : indexStart+indexLen]

	readUvarint := func() uint64 {
		v, n := binary.Uvarint(cursor)
		cursor = cursor[n:]
		return v
	}

	count := readUvarint()
	index := make([]blockIndexEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		keyLen := readUvarint()
		key := append([]byte(nil), cursor[:keyLen]...)
		cursor = cursor[keyLen:]
		offset := readUvarint()
		length := readUvarint()
		index = append(index, blockIndexEntry{firstKey: key, offset: int(offset), length: int(length)})
	}

	sstableIDCounter++
	return &SSTable{raw: raw, index: index, id: sstableIDCounter}, nil
}
