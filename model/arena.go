package model

// freeList bump-allocates records of T in fixed-size chunks. Records
// are handed out by pointer and stay valid until reset; there is no
// per-record free. One encode call owns one freeList and discards it
// wholesale when the call returns, so allocation is a pointer bump in
// the common case.
type freeList[T any] struct {
	chunkSize int
	chunks    [][]T
	n         int
}

func newFreeList[T any](chunkSize int) *freeList[T] {
	if chunkSize <= 0 {
		chunkSize = 1
	}

	return &freeList[T]{chunkSize: chunkSize}
}

// allocate returns a pointer to a zeroed record. The pointer remains
// stable: growing the freeList appends a new chunk and never moves
// records already handed out.
func (f *freeList[T]) allocate() *T {
	chunk, offset := f.n/f.chunkSize, f.n%f.chunkSize
	if chunk == len(f.chunks) {
		f.chunks = append(f.chunks, make([]T, f.chunkSize))
	}

	f.n++
	return &f.chunks[chunk][offset]
}

// len reports how many records have been handed out since the last
// reset.
func (f *freeList[T]) len() int {
	return f.n
}

// reset invalidates every record at once, keeping the chunks for
// reuse.
func (f *freeList[T]) reset() {
	for _, chunk := range f.chunks {
		clear(chunk)
	}

	f.n = 0
}
