package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPath(t *testing.T) {
	got := BuildPath(func(b *PathBuilder) {
		b.AppendWithDot("Patient")
		b.AppendWithDot("contact")
		b.AppendIndex(1)
		b.AppendWithDot("telecom")
		b.AppendIndex(0)
		b.AppendWithDot("value")
	})
	assert.Equal(t, "Patient.contact[1].telecom[0].value", got)
}

func TestBuilderReuseStartsEmpty(t *testing.T) {
	pb := AcquirePathBuilder()
	pb.AppendWithDot("Observation")
	assert.Equal(t, len("Observation"), pb.Len())
	pb.Release()

	again := AcquirePathBuilder()
	defer again.Release()
	assert.Equal(t, 0, again.Len())
	assert.Equal(t, "", again.String())
}

func TestIndexed(t *testing.T) {
	assert.Equal(t, "Bundle.entry[12]", Indexed("Bundle.entry", 12))
	assert.Equal(t, "[0]", Indexed("", 0))
}

func TestReleaseNil(t *testing.T) {
	var pb *PathBuilder
	assert.NotPanics(t, func() { pb.Release() })
}

func TestBuildPathConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got := BuildPath(func(b *PathBuilder) {
				b.AppendWithDot("x")
				b.AppendIndex(i)
			})
			assert.Equal(t, Indexed("x", i), got)
		}(i)
	}
	wg.Wait()
}
