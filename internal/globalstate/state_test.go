package globalstate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_DefaultNotPaused(t *testing.T) {
	s := New()
	assert.False(t, s.IsGloballyPaused())
}

func TestState_SetAndRead(t *testing.T) {
	s := New()
	s.SetGloballyPaused(true)
	assert.True(t, s.IsGloballyPaused())
	s.SetGloballyPaused(false)
	assert.False(t, s.IsGloballyPaused())
}

func TestState_ConcurrentReadsDontRace(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.IsGloballyPaused()
		}()
	}
	s.SetGloballyPaused(true)
	wg.Wait()
}
