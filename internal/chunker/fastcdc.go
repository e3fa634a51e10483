// Package chunker implements content-defined chunking: a FastCDC
// v2020-style variable-size chunker over an io.Reader (the GlobalStream,
// in this module's case), producing a deterministic, finite,
// non-restartable sequence of chunks in stream order.
package chunker

import (
	"io"

	"github.com/cdback/cdback/internal/common"
)

// Config holds the three FastCDC size parameters.
type Config struct {
	MinSize uint32
	AvgSize uint32
	MaxSize uint32
}

// DefaultConfig returns the chunker's recommended size parameters.
func DefaultConfig() Config {
	return Config{MinSize: 8 << 10, AvgSize: 16 << 10, MaxSize: 64 << 10}
}

func (c Config) validate() error {
	if c.MinSize == 0 || c.AvgSize == 0 || c.MaxSize == 0 {
		return common.NewKind(common.KindInvalidInput, "chunker sizes must be nonzero")
	}
	if !(c.MinSize < c.AvgSize && c.AvgSize < c.MaxSize) {
		return common.NewKindf(common.KindInvalidInput, "chunker sizes must satisfy min < avg < max, got %d < %d < %d", c.MinSize, c.AvgSize, c.MaxSize)
	}
	return nil
}

// normalizedMasks derives the two FastCDC "normalized chunking" bitmasks
// from AvgSize: maskSmall is stricter (more required zero bits, so it
// rarely fires) and is used for the region up to AvgSize, discouraging
// chunks that are barely above MinSize; maskLarge is looser and is used
// from AvgSize up to MaxSize, pushing the boundary to fire before the
// stream is forced to cut at MaxSize. This is the "normalization level 2"
// variant described in the FastCDC paper.
func normalizedMasks(avgSize uint32) (maskSmall, maskLarge uint64) {
	bits := uint(0)
	for v := avgSize; v > 1; v >>= 1 {
		bits++
	}
	const normalization = 2
	maskSmall = (uint64(1) << (bits + normalization)) - 1
	if bits > normalization {
		maskLarge = (uint64(1) << (bits - normalization)) - 1
	} else {
		maskLarge = (uint64(1) << bits) - 1
	}
	return maskSmall, maskLarge
}

// Chunk is one emitted chunk: its absolute offset in the GlobalStream and
// its bytes. Chunk.Data is owned by the caller (a fresh slice per chunk);
// the whole chunk is materialized into a buffer rather than streamed,
// since callers need to hash the complete chunk anyway.
type Chunk struct {
	GlobalOffset uint64
	Data         []byte
}

// Chunker is a lazy, finite, forward-only iterator over r: call Next
// repeatedly until it returns io.EOF. It is not restartable.
type Chunker struct {
	r         io.Reader
	cfg       Config
	maskSmall uint64
	maskLarge uint64

	buf    []byte
	start  int // first unconsumed byte in buf
	end    int // one past last valid byte in buf
	eof    bool
	offset uint64
}

// New builds a Chunker reading from r with the given configuration.
func New(r io.Reader, cfg Config) (*Chunker, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	maskSmall, maskLarge := normalizedMasks(cfg.AvgSize)
	return &Chunker{
		r:         r,
		cfg:       cfg,
		maskSmall: maskSmall,
		maskLarge: maskLarge,
		buf:       make([]byte, cfg.MaxSize*2),
	}, nil
}

// fill ensures the buffer holds at least one MaxSize's worth of unconsumed
// data (or everything left, if the stream is shorter than that).
func (c *Chunker) fill() error {
	if c.end-c.start >= int(c.cfg.MaxSize) || c.eof {
		return nil
	}
	n := copy(c.buf, c.buf[c.start:c.end])
	c.start = 0
	c.end = n
	for c.end < len(c.buf) && !c.eof {
		m, err := c.r.Read(c.buf[c.end:])
		c.end += m
		if err == io.EOF {
			c.eof = true
			break
		}
		if err != nil {
			return common.WrapKind(common.KindIO, err, "read global stream")
		}
		if m == 0 {
			c.eof = true
			break
		}
	}
	return nil
}

// Next returns the next chunk in stream order, or io.EOF once the stream is
// exhausted.
func (c *Chunker) Next() (Chunk, error) {
	if err := c.fill(); err != nil {
		return Chunk{}, err
	}
	available := c.end - c.start
	if available == 0 {
		return Chunk{}, io.EOF
	}

	cutLen := c.findCut(c.buf[c.start:c.end])
	data := make([]byte, cutLen)
	copy(data, c.buf[c.start:c.start+cutLen])

	chunk := Chunk{GlobalOffset: c.offset, Data: data}
	c.offset += uint64(cutLen)
	c.start += cutLen
	return chunk, nil
}

// findCut implements the normalized FastCDC boundary search over buf,
// returning the length of the next chunk. buf may be shorter than MaxSize
// only when this is the final chunk of the stream.
func (c *Chunker) findCut(buf []byte) int {
	n := len(buf)
	if n <= int(c.cfg.MinSize) {
		return n
	}
	maxLen := n
	if maxLen > int(c.cfg.MaxSize) {
		maxLen = int(c.cfg.MaxSize)
	}
	normalLen := int(c.cfg.AvgSize)
	if normalLen > maxLen {
		normalLen = maxLen
	}

	var hash uint64
	i := int(c.cfg.MinSize)
	for ; i < normalLen; i++ {
		hash = (hash << 1) + gearTable[buf[i]]
		if hash&c.maskSmall == 0 {
			return i + 1
		}
	}
	for ; i < maxLen; i++ {
		hash = (hash << 1) + gearTable[buf[i]]
		if hash&c.maskLarge == 0 {
			return i + 1
		}
	}
	return maxLen
}
