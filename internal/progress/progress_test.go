package progress

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker_ConcurrentTicks(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTrackerTo(&buf, "Analyzing", 100)
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Tick()
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 100, tr.Count())
	tr.FinishSuccess()
}

func TestTracker_FinishPartial(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTrackerTo(&buf, "Analyzing", 10)
	tr.Tick()
	tr.FinishPartial(9)
	assert.Contains(t, buf.String(), "Analyzing interrupted (9 files skipped)")
}

func TestTracker_FinishError(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTrackerTo(&buf, "Analyzing", 0)
	tr.FinishError(errors.New("boom"))
	assert.Contains(t, buf.String(), "Analyzing error: boom")
}
