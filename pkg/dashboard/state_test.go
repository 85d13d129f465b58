package dashboard_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/boa-dev/conformoor/pkg/dashboard"
	"github.com/boa-dev/conformoor/pkg/report"
)

func TestState_UnpopulatedRefIsNil(t *testing.T) {
	state := dashboard.NewState()

	// A lookup racing ahead of the loader returns nil, never panics.
	assert.Nil(t, state.Latest("heads/master"))
	assert.Nil(t, state.Info())
	assert.Empty(t, state.Refs())
}

func TestState_SetAndGet(t *testing.T) {
	state := dashboard.NewState()

	state.SetLatest("heads/master", &report.Latest{Commit: "abc"})
	state.SetLatest("tags/v0.20", &report.Latest{Commit: "def"})
	state.SetInfo(&report.Info{Raw: []byte(`{}`)})

	assert.Equal(t, "abc", state.Latest("heads/master").Commit)
	assert.Equal(t, []string{"heads/master", "tags/v0.20"}, state.Refs())
	assert.NotNil(t, state.Info())
}

func TestState_ConcurrentAccess(t *testing.T) {
	state := dashboard.NewState()

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(2)

		go func() {
			defer wg.Done()

			state.SetLatest("heads/master", &report.Latest{Commit: "x"})
		}()

		go func() {
			defer wg.Done()

			_ = state.Latest("heads/master")
			_ = state.Refs()
		}()
	}

	wg.Wait()
}
