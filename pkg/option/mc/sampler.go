package mc

import (
	"encoding/binary"
	"iter"
	"math/rand/v2"
)

// Sampler 有限长度、可重放的标准正态抽样序列（RandomPathSampler）
//
// 给定 (seed, stream) 序列完全确定；Reset 之后重新产出同一序列。
// 对偶模式下每次真正抽取 z，依次产出 z 和 -z。
// 非并发安全，每个分块独占一个 Sampler。
type Sampler struct {
	key        [32]byte
	src        *rand.ChaCha8
	rng        *rand.Rand
	length     int
	pos        int
	antithetic bool
	mirror     float64 // 对偶模式下待产出的 -z
}

// NewSampler 创建长度为 n 的抽样序列；stream 区分同一基础种子下的独立子序列
func NewSampler(seed, stream uint64, n int, antithetic bool) *Sampler {
	key := streamKey(seed, stream)
	src := rand.NewChaCha8(key)
	return &Sampler{
		key:        key,
		src:        src,
		rng:        rand.New(src),
		length:     n,
		antithetic: antithetic,
	}
}

// Next 取下一个抽样值，序列耗尽时 ok=false
func (s *Sampler) Next() (z float64, ok bool) {
	if s.pos >= s.length {
		return 0, false
	}
	if s.antithetic && s.pos%2 == 1 {
		z = s.mirror
	} else {
		z = s.rng.NormFloat64()
		s.mirror = -z
	}
	s.pos++
	return z, true
}

// NextPair 一次取两个值；对偶模式下恰好是 (z, -z)
func (s *Sampler) NextPair() (z1, z2 float64, ok bool) {
	if s.length-s.pos < 2 {
		return 0, 0, false
	}
	z1, _ = s.Next()
	z2, _ = s.Next()
	return z1, z2, true
}

// Reset 回到序列起点
func (s *Sampler) Reset() {
	s.src.Seed(s.key)
	s.pos = 0
	s.mirror = 0
}

// Len 序列总长度
func (s *Sampler) Len() int { return s.length }

// Remaining 剩余可取的个数
func (s *Sampler) Remaining() int { return s.length - s.pos }

// All 从头遍历整个序列（会先 Reset）
func (s *Sampler) All() iter.Seq[float64] {
	return func(yield func(float64) bool) {
		s.Reset()
		for {
			z, ok := s.Next()
			if !ok || !yield(z) {
				return
			}
		}
	}
}

// streamKey 用 splitmix64 把 (seed, stream) 展开成 ChaCha8 的 32 字节密钥
func streamKey(seed, stream uint64) [32]byte {
	state := splitmix64(&seed) ^ stream
	var key [32]byte
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint64(key[i*8:], splitmix64(&state))
	}
	return key
}

func splitmix64(state *uint64) uint64 {
	*state += 0x9e3779b97f4a7c15
	z := *state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
