// Package pool provides pooled builders for the location strings attached
// to conversion errors.
package pool

import (
	"strconv"
	"sync"
)

// PathBuilder builds dotted, indexed locations such as
// "Patient.contact[1].telecom[0]". Instances are reused through a
// sync.Pool; use BuildPath unless the builder must outlive one call.
type PathBuilder struct {
	buf []byte
}

var pathBuilderPool = sync.Pool{
	New: func() any {
		return &PathBuilder{buf: make([]byte, 0, 128)}
	},
}

// AcquirePathBuilder gets an empty builder from the pool.
func AcquirePathBuilder() *PathBuilder {
	pb := pathBuilderPool.Get().(*PathBuilder)
	pb.buf = pb.buf[:0]
	return pb
}

// Release returns the builder to the pool. Oversized buffers are dropped.
func (b *PathBuilder) Release() {
	if b == nil || cap(b.buf) > 2048 {
		return
	}
	pathBuilderPool.Put(b)
}

// Len returns the length of the location built so far.
func (b *PathBuilder) Len() int { return len(b.buf) }

// AppendWithDot appends a segment, preceded by '.' unless the builder is
// empty.
func (b *PathBuilder) AppendWithDot(segment string) {
	if len(b.buf) > 0 {
		b.buf = append(b.buf, '.')
	}
	b.buf = append(b.buf, segment...)
}

// AppendIndex appends "[n]".
func (b *PathBuilder) AppendIndex(index int) {
	b.buf = append(b.buf, '[')
	b.buf = strconv.AppendInt(b.buf, int64(index), 10)
	b.buf = append(b.buf, ']')
}

// String returns the location.
func (b *PathBuilder) String() string {
	return string(b.buf)
}

// BuildPath runs fn on a pooled builder and returns the result.
//
//	loc := pool.BuildPath(func(b *pool.PathBuilder) {
//	    b.AppendWithDot("Patient")
//	    b.AppendWithDot("contact")
//	    b.AppendIndex(1)
//	})
func BuildPath(fn func(*PathBuilder)) string {
	pb := AcquirePathBuilder()
	defer pb.Release()
	fn(pb)
	return pb.String()
}

// Indexed returns base followed by "[index]".
func Indexed(base string, index int) string {
	return BuildPath(func(b *PathBuilder) {
		b.buf = append(b.buf, base...)
		b.AppendIndex(index)
	})
}
