package vectorstore

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
)

// On-disk layout of a shard file:
//
//	header: magic "CVL1" | dim uint32
//	record: keyLen uint32 | key | count uint32 | count*float32 | crc32c uint32
//
// All integers are little-endian. count == 0 marks a removal. The CRC covers
// every byte of the record before it. A later record for a key supersedes
// earlier ones.
const (
	logMagic   = "CVL1"
	headerSize = 8
	maxKeyLen  = 1 << 16
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

func encodeHeader(dim int) []byte {
	b := make([]byte, headerSize)
	copy(b, logMagic)
	binary.LittleEndian.PutUint32(b[4:], uint32(dim))
	return b
}

func recordSize(key string, vec []float32) int {
	return 4 + len(key) + 4 + 4*len(vec) + 4
}

// appendRecord encodes one record onto buf. A nil vec encodes a removal.
func appendRecord(buf []byte, key string, vec []float32) []byte {
	start := len(buf)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(key)))
	buf = append(buf, key...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(vec)))
	for _, f := range vec {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return binary.LittleEndian.AppendUint32(buf, crc32.Checksum(buf[start:], crcTable))
}

// logScan is the outcome of decoding a shard file.
type logScan struct {
	validEnd int64 // offset just past the last complete record
	records  int   // complete records, including superseded ones
	torn     bool  // trailing bytes did not form a complete record
}

// decodeLog replays b into apply. It stops at the first incomplete or
// checksum-failing record and reports where the valid prefix ends.
func decodeLog(b []byte, dim int, apply func(key string, vec []float32)) (logScan, error) {
	if len(b) < headerSize {
		return logScan{torn: len(b) > 0}, nil
	}
	if string(b[:4]) != logMagic {
		return logScan{}, fmt.Errorf("%w: bad magic %q", ErrCorrupt, b[:4])
	}
	if got := int(binary.LittleEndian.Uint32(b[4:8])); got != dim {
		return logScan{}, dimErr(got, dim)
	}

	scan := logScan{validEnd: headerSize}
	off := headerSize
	for off < len(b) {
		n, key, vec, ok := decodeRecord(b[off:], dim)
		if !ok {
			scan.torn = true
			break
		}
		apply(key, vec)
		off += n
		scan.records++
		scan.validEnd = int64(off)
	}
	return scan, nil
}

func decodeRecord(b []byte, dim int) (n int, key string, vec []float32, ok bool) {
	if len(b) < 4 {
		return 0, "", nil, false
	}
	keyLen := int(binary.LittleEndian.Uint32(b))
	if keyLen == 0 || keyLen > maxKeyLen || len(b) < 4+keyLen+4 {
		return 0, "", nil, false
	}
	p := 4 + keyLen
	count := int(binary.LittleEndian.Uint32(b[p:]))
	if count != 0 && count != dim {
		return 0, "", nil, false
	}
	p += 4
	end := p + 4*count
	if len(b) < end+4 {
		return 0, "", nil, false
	}
	if crc32.Checksum(b[:end], crcTable) != binary.LittleEndian.Uint32(b[end:]) {
		return 0, "", nil, false
	}
	key = string(b[4 : 4+keyLen])
	if count > 0 {
		vec = make([]float32, count)
		for i := range vec {
			vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[p+4*i:]))
		}
	}
	return end + 4, key, vec, true
}
