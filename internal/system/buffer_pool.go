package system

import (
	"image"
	"sync"
)

// CanvasPool reuses *image.NRGBA scratch canvases between compositing runs
// to keep the garbage collector out of frame-by-frame work.
type CanvasPool struct {
	pools map[image.Rectangle]*sync.Pool
	mu    sync.RWMutex
}

// NewCanvasPool creates an empty pool.
func NewCanvasPool() *CanvasPool {
	return &CanvasPool{pools: make(map[image.Rectangle]*sync.Pool)}
}

var globalPool = NewCanvasPool()

// GetCanvas returns a canvas of the given bounds from the shared pool. Its
// contents are undefined.
func GetCanvas(rect image.Rectangle) *image.NRGBA {
	return globalPool.Get(rect)
}

// PutCanvas hands a canvas back to the shared pool.
func PutCanvas(img *image.NRGBA) {
	globalPool.Put(img)
}

func (p *CanvasPool) Get(rect image.Rectangle) *image.NRGBA {
	p.mu.RLock()
	pool, exists := p.pools[rect]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		// Double check
		pool, exists = p.pools[rect]
		if !exists {
			pool = &sync.Pool{
				New: func() interface{} {
					return image.NewNRGBA(rect)
				},
			}
			p.pools[rect] = pool
		}
		p.mu.Unlock()
	}

	return pool.Get().(*image.NRGBA)
}

func (p *CanvasPool) Put(img *image.NRGBA) {
	if img == nil {
		return
	}
	p.mu.RLock()
	pool, exists := p.pools[img.Rect]
	p.mu.RUnlock()

	if exists {
		pool.Put(img)
	}
}
