package catalog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHolder(t *testing.T) {
	var h Holder
	assert.Empty(t, h.Load().Categories())
	assert.Nil(t, h.Load().Mapper().Map("VITC", 10))

	c, err := New(testData())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Load().Categories()
		}()
	}
	h.Store(c)
	wg.Wait()

	assert.Same(t, c, h.Load())
	assert.Same(t, c, NewHolder(c).Load())
}
