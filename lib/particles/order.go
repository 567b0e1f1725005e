package particles

import (
	"fmt"
	"sort"
	"unsafe"
)

func unsafeFlatten(x [][3]float32) []float32 {
	return unsafe.Slice(&x[0][0], 3*len(x))
}

// Argsort returns the permutation which sorts id in ascending order. Ties
// keep their original relative order, so the result is deterministic.
func Argsort(id []uint32) []int {
	perm := make([]int, len(id))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool {
		return id[perm[i]] < id[perm[j]]
	})
	return perm
}

// CheckPermutation returns an error unless perm is a permutation of 0..n-1.
func CheckPermutation(perm []int, n int) error {
	if len(perm) != n {
		return fmt.Errorf("The permutation has %d elements, but the block "+
			"has %d particles.", len(perm), n)
	}
	seen := make([]bool, n)
	for i, j := range perm {
		if j < 0 || j >= n || seen[j] {
			return fmt.Errorf("Element %d of the permutation, %d, is out "+
				"of range or repeated.", i, j)
		}
		seen[j] = true
	}
	return nil
}

// Reorder returns a new block holding b[perm[0]], b[perm[1]], ... The
// original block is left unchanged.
func Reorder(b Block, perm []int) (Block, error) {
	if err := CheckPermutation(perm, b.Len()); err != nil {
		return nil, fmt.Errorf("Cannot reorder '%s': %s", b.Name(), err.Error())
	}
	dest := Particles{}
	b.CreateDestination(dest, b.Len())
	to := make([]int, len(perm))
	for i := range to {
		to[i] = i
	}
	if err := b.Transfer(dest, perm, to); err != nil {
		return nil, err
	}
	return dest[b.Name()], nil
}

// ReorderAll applies the same permutation to every block in p.
func ReorderAll(p Particles, perm []int) (Particles, error) {
	out := Particles{}
	for name, b := range p {
		r, err := Reorder(b, perm)
		if err != nil {
			return nil, err
		}
		out[name] = r
	}
	return out, nil
}

// Place copies every row of src into dst starting at row offset.
func Place(dst, src Block, offset int) error {
	if dst.Name() != src.Name() {
		return fmt.Errorf("Cannot copy the '%s' block into the '%s' block.",
			src.Name(), dst.Name())
	}
	if offset < 0 || offset+src.Len() > dst.Len() {
		return fmt.Errorf("Cannot copy %d rows of '%s' to offset %d of a "+
			"block with %d rows.", src.Len(), src.Name(), offset, dst.Len())
	}
	from, to := make([]int, src.Len()), make([]int, src.Len())
	for i := range from {
		from[i], to[i] = i, offset+i
	}
	return src.Transfer(Particles{dst.Name(): dst}, from, to)
}
