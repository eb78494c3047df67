// Package pipeline prepares symbol sequences for the model: byte-level
// encoding and decoding, padding to the model's group span, one-hot batch
// tensors, and token chunking for embedding export.
package pipeline

import (
	"fmt"
	"strings"

	"gorgonia.org/tensor"
)

// Encode maps text to its UTF-8 bytes, one symbol id per byte.
func Encode(text string) []int {
	ids := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		ids[i] = int(text[i])
	}
	return ids
}

// Decode is the inverse of Encode for ids in byte range.
func Decode(ids []int) string {
	var b strings.Builder
	b.Grow(len(ids))
	for _, id := range ids {
		b.WriteByte(byte(id))
	}
	return b.String()
}

// Pad right-pads ids with padID to a multiple of the given length. A zero or
// negative multiple is a usage error.
func Pad(ids []int, multiple, padID int) ([]int, error) {
	if multiple < 1 {
		return nil, fmt.Errorf("pad: multiple must be positive, got %d", multiple)
	}
	rem := len(ids) % multiple
	if rem == 0 && len(ids) > 0 {
		return ids, nil
	}
	padded := make([]int, len(ids), len(ids)+multiple-rem)
	copy(padded, ids)
	for len(padded)%multiple != 0 || len(padded) == 0 {
		padded = append(padded, padID)
	}
	return padded, nil
}

// Chunk splits ids into consecutive size-length tokens, decoded to strings.
// With keepRepeats false each token appears once, in first-seen order.
func Chunk(ids []int, size int, keepRepeats bool) ([]string, error) {
	if size < 1 {
		return nil, fmt.Errorf("chunk: size must be positive, got %d", size)
	}
	var out []string
	seen := map[string]bool{}
	for i := 0; i+size <= len(ids); i += size {
		tok := Decode(ids[i : i+size])
		if !keepRepeats {
			if seen[tok] {
				continue
			}
			seen[tok] = true
		}
		out = append(out, tok)
	}
	return out, nil
}

// OneHot builds a (len(ids), depth) float32 tensor with a single 1 per row.
func OneHot(ids []int, depth int) (*tensor.Dense, error) {
	if depth < 1 {
		return nil, fmt.Errorf("one-hot: depth must be positive, got %d", depth)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("one-hot: empty sequence")
	}
	backing := make([]float32, len(ids)*depth)
	for i, id := range ids {
		if id < 0 || id >= depth {
			return nil, fmt.Errorf("one-hot: id %d out of range [0, %d)", id, depth)
		}
		backing[i*depth+id] = 1
	}
	return tensor.New(tensor.WithShape(len(ids), depth), tensor.WithBacking(backing)), nil
}

// ArgmaxRows reduces a (N, U) probability tensor to per-row symbol ids.
func ArgmaxRows(t tensor.Tensor) ([]int, error) {
	if t.Dims() != 2 {
		return nil, fmt.Errorf("argmax: want rank 2, got %d", t.Dims())
	}
	am, err := tensor.Argmax(t, 1)
	if err != nil {
		return nil, err
	}
	data := am.Data().([]int)
	out := make([]int, len(data))
	copy(out, data)
	return out, nil
}

// Windows cuts ids into consecutive size-length training windows; the tail is
// padded with padID rather than dropped.
func Windows(ids []int, size, padID int) ([][]int, error) {
	if size < 1 {
		return nil, fmt.Errorf("windows: size must be positive, got %d", size)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("windows: empty sequence")
	}
	var out [][]int
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		w := make([]int, size)
		copy(w, ids[i:end])
		for j := end - i; j < size; j++ {
			w[j] = padID
		}
		out = append(out, w)
	}
	return out, nil
}
