package memory

import "sync"

// Pool is a typed object pool.
type Pool[T any] struct {
	p *sync.Pool
}

func NewPool[T any](ctor func() *T) *Pool[T] {
	return &Pool[T]{
		p: &sync.Pool{
			New: func() any { return ctor() },
		},
	}
}

func (p *Pool[T]) Get() *T {
	return p.p.Get().(*T)
}

func (p *Pool[T]) Put(v *T) {
	p.p.Put(v)
}

// Buffers pools byte slices of any length.
type Buffers struct {
	pool *Pool[[]byte]
}

func NewBuffers() *Buffers {
	return &Buffers{pool: NewPool(func() *[]byte {
		b := make([]byte, 0, 4096)
		return &b
	})}
}

// Copy returns a pooled slice holding a copy of src. Hand it back with
// Release once it is no longer needed.
func (b *Buffers) Copy(src []byte) *[]byte {
	p := b.pool.Get()
	*p = append((*p)[:0], src...)
	return p
}

func (b *Buffers) Release(p *[]byte) {
	if p == nil {
		return
	}
	*p = (*p)[:0]
	b.pool.Put(p)
}
