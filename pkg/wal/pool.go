package wal

import "sync"

// bufferPool reuses line-encoding byte buffers to avoid a per-append
// allocation under write-heavy load.
var bufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, 0, 512)
		return &buf
	},
}

func acquireBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

func releaseBuffer(buf *[]byte) {
	*buf = (*buf)[:0]
	bufferPool.Put(buf)
}
