package cache

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"time"
)

// On-disk entries are framed so that truncated or damaged files are
// detected on read:
//
//	magic(4) | inserted unix nanos(8) | value length(8) | crc32(4) | value
const (
	entryMagic      = "ROI1"
	entryHeaderSize = 24
)

var errCorruptEntry = errors.New("corrupt cache entry")

type entryHeader struct {
	inserted time.Time
	length   int64
	sum      uint32
}

func encodeEntry(v []byte, inserted time.Time) []byte {
	buf := make([]byte, entryHeaderSize+len(v))
	copy(buf[0:4], entryMagic)
	binary.BigEndian.PutUint64(buf[4:12], uint64(inserted.UnixNano()))
	binary.BigEndian.PutUint64(buf[12:20], uint64(len(v)))
	binary.BigEndian.PutUint32(buf[20:24], crc32.ChecksumIEEE(v))
	copy(buf[entryHeaderSize:], v)
	return buf
}

func decodeHeader(buf []byte) (entryHeader, error) {
	if len(buf) < entryHeaderSize || string(buf[0:4]) != entryMagic {
		return entryHeader{}, errCorruptEntry
	}
	return entryHeader{
		inserted: time.Unix(0, int64(binary.BigEndian.Uint64(buf[4:12]))),
		length:   int64(binary.BigEndian.Uint64(buf[12:20])),
		sum:      binary.BigEndian.Uint32(buf[20:24]),
	}, nil
}

func decodeEntry(buf []byte) ([]byte, time.Time, error) {
	h, err := decodeHeader(buf)
	if err != nil {
		return nil, time.Time{}, err
	}
	value := buf[entryHeaderSize:]
	if int64(len(value)) != h.length || crc32.ChecksumIEEE(value) != h.sum {
		return nil, time.Time{}, errCorruptEntry
	}
	return value, h.inserted, nil
}
