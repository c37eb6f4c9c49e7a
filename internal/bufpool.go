// A pool of reusable byte buffers, to avoid allocating one per message on
// the hot path of the wire protocol (writer.go's per-connection encode
// buffer; transport.go's read loop uses its own slices).

package schedcore

import (
	"bytes"
	"sync"
)

const (
	BUF_POOL_MAX_SIZE_UNBOUND = 0
)

type BufPool struct {
	pool        []*bytes.Buffer
	maxPoolSize int
	poolSize    int
	mu          *sync.Mutex
}

func NewBufPool(maxPoolSize int) *BufPool {
	return &BufPool{
		pool:        make([]*bytes.Buffer, 0),
		maxPoolSize: maxPoolSize,
		mu:          &sync.Mutex{},
	}
}

func (p *BufPool) GetBuf() *bytes.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.poolSize > 0 {
		p.poolSize--
		buf := p.pool[p.poolSize]
		buf.Reset()
		return buf
	}
	return &bytes.Buffer{}
}

func (p *BufPool) ReturnBuf(b *bytes.Buffer) {
	if b == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.maxPoolSize > 0 && p.poolSize >= p.maxPoolSize {
		return
	}

	if p.poolSize >= len(p.pool) {
		p.pool = append(p.pool, b)
	} else {
		p.pool[p.poolSize] = b
	}
	p.poolSize++
}

func (p *BufPool) MaxPoolSize() int {
	return p.maxPoolSize
}
