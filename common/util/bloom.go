package util

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/juju/errors"
	"github.com/spaolacci/murmur3"
)

const (
	bitsPerByte      = 8
	bloomHeaderSize  = 8 + 8 + 1
	defaultBloomHash = 7
)

// BloomFilter is a fixed size set with false positives and no false
// negatives.
type BloomFilter struct {
	lock sync.RWMutex

	m    uint64
	n    uint64
	k    uint8
	keys []byte
}

// http://pages.cs.wisc.edu/~cao/papers/summary-cache/node8.html
func NewBloomFilter(bits uint64) *BloomFilter {
	if bits < bitsPerByte {
		bits = bitsPerByte
	}
	return &BloomFilter{
		m:    bits,
		k:    defaultBloomHash,
		keys: make([]byte, (bits+bitsPerByte-1)/bitsPerByte),
	}
}

// LoadBloomFilter reads a filter written by Save.
func LoadBloomFilter(reader io.Reader) (*BloomFilter, error) {
	header := make([]byte, bloomHeaderSize)
	_, err := io.ReadFull(reader, header)
	if err != nil {
		return nil, errors.Annotatef(err, "read bloom filter header")
	}
	keys, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Trace(err)
	}
	filter := &BloomFilter{
		m:    binary.BigEndian.Uint64(header[0:]),
		n:    binary.BigEndian.Uint64(header[8:]),
		k:    header[16],
		keys: keys,
	}
	if filter.m == 0 || filter.k == 0 || uint64(len(keys))*bitsPerByte < filter.m {
		return nil, errors.NotValidf("bloom filter of %d bits with %d bytes", filter.m, len(keys))
	}
	return filter, nil
}

func (f *BloomFilter) Add(data []byte) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.add(f.getLocations(data))
}

func (f *BloomFilter) Exists(data []byte) bool {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.exists(f.getLocations(data))
}

// TestAndAdd adds data and reports whether it was already present.
func (f *BloomFilter) TestAndAdd(data []byte) bool {
	locations := f.getLocations(data)
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.exists(locations) {
		return true
	}
	f.add(locations)
	return false
}

// Count is the number of distinct additions seen so far.
func (f *BloomFilter) Count() uint64 {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.n
}

func (f *BloomFilter) add(locations []uint64) {
	for _, loc := range locations {
		f.keys[loc/bitsPerByte] |= 1 << (loc % bitsPerByte)
	}
	f.n++
}

func (f *BloomFilter) exists(locations []uint64) bool {
	for _, loc := range locations {
		if f.keys[loc/bitsPerByte]&(1<<(loc%bitsPerByte)) == 0 {
			return false
		}
	}
	return true
}

func (f *BloomFilter) Save(writer io.Writer) error {
	f.lock.RLock()
	defer f.lock.RUnlock()

	header := make([]byte, 0, bloomHeaderSize)
	header = binary.BigEndian.AppendUint64(header, f.m)
	header = binary.BigEndian.AppendUint64(header, f.n)
	header = append(header, f.k)
	_, err := writer.Write(header)
	if err != nil {
		return errors.Trace(err)
	}
	_, err = writer.Write(f.keys)
	if err != nil {
		return errors.Trace(err)
	}
	return nil
}

func (f *BloomFilter) getLocations(data []byte) []uint64 {
	buf := make([]byte, len(data)+1)
	copy(buf, data)
	locations := make([]uint64, f.k)
	for i := uint8(0); i < f.k; i++ {
		buf[len(data)] = i
		locations[i] = baseHash(buf) % f.m
	}
	return locations
}

func baseHash(data []byte) uint64 {
	hasher := murmur3.New64()
	_, _ = hasher.Write(data)
	return hasher.Sum64()
}
