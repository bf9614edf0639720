package httpapi

import (
	"bytes"
	"io"
	"os"
	"sync"
)

// bodySpool buffers request bodies in memory up to a threshold, then spills
// to a temp file outside the spool directory. Payloads that fail validation
// therefore never touch the shared spool.
type bodySpool struct {
	threshold int64
	buf       []byte
	file      *os.File
	pooled    bool
}

var bodyBufferPool = sync.Pool{
	New: func() any {
		return make([]byte, 0, defaultBodySpoolMemoryThreshold)
	},
}

func newBodySpool(threshold int64) *bodySpool {
	bs := &bodySpool{threshold: threshold}
	if threshold <= 0 {
		return bs
	}
	maxInt := int64(^uint(0) >> 1)
	if threshold > maxInt {
		threshold = maxInt
	}
	bufCap := int(threshold)
	if threshold == defaultBodySpoolMemoryThreshold {
		if buf, ok := bodyBufferPool.Get().([]byte); ok {
			if cap(buf) < bufCap {
				buf = make([]byte, 0, bufCap)
			} else {
				buf = buf[:0]
			}
			bs.buf = buf
			bs.pooled = true
			return bs
		}
	}
	if bufCap > 0 {
		bs.buf = make([]byte, 0, bufCap)
	}
	return bs
}

func (b *bodySpool) Write(data []byte) (int, error) {
	if b.file != nil {
		return b.file.Write(data)
	}
	if int64(len(b.buf))+int64(len(data)) <= b.threshold {
		b.buf = append(b.buf, data...)
		return len(data), nil
	}
	f, err := os.CreateTemp("", "spoold-body-")
	if err != nil {
		return 0, err
	}
	if len(b.buf) > 0 {
		if _, err := f.Write(b.buf); err != nil {
			f.Close()
			_ = os.Remove(f.Name())
			return 0, err
		}
	}
	if b.pooled && b.buf != nil {
		bodyBufferPool.Put(b.buf[:0]) //nolint:staticcheck // avoid extra allocation by pooling value slice
		b.pooled = false
	}
	n, err := f.Write(data)
	if err != nil {
		f.Close()
		_ = os.Remove(f.Name())
		return n, err
	}
	b.file = f
	b.buf = nil
	return n, nil
}

func (b *bodySpool) Reader() (io.ReadSeeker, error) {
	if b.file != nil {
		if _, err := b.file.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		return b.file, nil
	}
	return bytes.NewReader(b.buf), nil
}

func (b *bodySpool) Close() error {
	if b.file != nil {
		name := b.file.Name()
		err := b.file.Close()
		_ = os.Remove(name)
		b.file = nil
		return err
	}
	if b.pooled && b.buf != nil {
		bodyBufferPool.Put(b.buf[:0]) //nolint:staticcheck // avoid extra allocation by pooling value slice
		b.pooled = false
	}
	b.buf = nil
	return nil
}
