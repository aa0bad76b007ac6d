// Package chaos provides utilities for chaos testing with corrupt inputs.
//
// Chaos testing intentionally corrupts valid inputs, such as query text or
// persisted cache entries, to verify that scanners and durable backends
// handle malformed data gracefully without panicking.
package chaos

import (
	"math/rand"
	"unicode/utf8"
)

// Corruptor applies deterministic, seeded corruptions to input data.
type Corruptor struct {
	rng *rand.Rand
}

// NewCorruptor creates a new Corruptor with the given seed.
func NewCorruptor(seed int64) *Corruptor {
	return &Corruptor{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Mutation represents a type of corruption applied to input.
type Mutation int

const (
	ByteFlip Mutation = iota
	ByteDelete
	ByteInsert
	ByteReplace
	Utf8Corrupt
	Truncation
	BitInversion
	mutationCount
)

// Corrupt applies a random corruption to a copy of input.
func (c *Corruptor) Corrupt(input []byte) []byte {
	if len(input) == 0 {
		return c.randomBytes()
	}

	result := make([]byte, len(input))
	copy(result, input)

	switch Mutation(c.rng.Intn(int(mutationCount))) {
	case ByteFlip:
		return c.byteFlip(result)
	case ByteDelete:
		return c.byteDelete(result)
	case ByteInsert:
		return c.byteInsert(result)
	case ByteReplace:
		return c.byteReplace(result)
	case Utf8Corrupt:
		return c.utf8Corrupt(result)
	case Truncation:
		return c.truncate(result)
	case BitInversion:
		return c.bitInversion(result)
	default:
		return result
	}
}

// CorruptN applies n random corruptions to a copy of input.
func (c *Corruptor) CorruptN(input []byte, n int) []byte {
	result := make([]byte, len(input))
	copy(result, input)

	for range n {
		result = c.Corrupt(result)
	}

	return result
}

// CorruptString is CorruptN for text inputs such as queries.
func (c *Corruptor) CorruptString(input string, n int) string {
	return string(c.CorruptN([]byte(input), n))
}

// GenerateCorpus generates a corpus of corrupted inputs from a valid input.
func (c *Corruptor) GenerateCorpus(valid []byte, count int) [][]byte {
	corpus := make([][]byte, count)
	for i := range count {
		// Vary the corruption intensity
		intensity := c.rng.Intn(5) + 1
		corpus[i] = c.CorruptN(valid, intensity)
	}
	return corpus
}

// byteFlip flips one bit in 1-3 random bytes.
func (c *Corruptor) byteFlip(b []byte) []byte {
	n := c.rng.Intn(3) + 1
	for range n {
		idx := c.rng.Intn(len(b))
		b[idx] ^= byte(1 << c.rng.Intn(8))
	}
	return b
}

func (c *Corruptor) byteDelete(b []byte) []byte {
	if len(b) <= 1 {
		return b
	}
	idx := c.rng.Intn(len(b))
	return append(b[:idx], b[idx+1:]...)
}

func (c *Corruptor) byteInsert(b []byte) []byte {
	idx := c.rng.Intn(len(b) + 1)
	out := make([]byte, 0, len(b)+1)
	out = append(out, b[:idx]...)
	out = append(out, byte(c.rng.Intn(256)))
	return append(out, b[idx:]...)
}

func (c *Corruptor) byteReplace(b []byte) []byte {
	b[c.rng.Intn(len(b))] = byte(c.rng.Intn(256))
	return b
}

// utf8Corrupt damages multi-byte sequences and may inject an invalid
// start byte.
func (c *Corruptor) utf8Corrupt(b []byte) []byte {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if size > 1 && r != utf8.RuneError && c.rng.Float64() < 0.5 {
			b[i+size-1] = byte(c.rng.Intn(256))
		}
		i += size
	}

	if c.rng.Float64() < 0.3 {
		b[c.rng.Intn(len(b))] = 0xC0 | byte(c.rng.Intn(0x20))
	}
	return b
}

func (c *Corruptor) truncate(b []byte) []byte {
	if len(b) <= 1 {
		return b
	}
	return b[:c.rng.Intn(len(b)-1)+1]
}

// bitInversion inverts 1-5 random bits.
func (c *Corruptor) bitInversion(b []byte) []byte {
	n := c.rng.Intn(5) + 1
	for range n {
		b[c.rng.Intn(len(b))] ^= 1 << c.rng.Intn(8)
	}
	return b
}

func (c *Corruptor) randomBytes() []byte {
	out := make([]byte, c.rng.Intn(10)+1)
	c.rng.Read(out)
	return out
}
