package sequence

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
)

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestDescribe_Golden(t *testing.T) {
	h := newHarness(t)
	s := h.seq(t, "intro").
		WithOwner(0, "door").
		WaitFor(1500*time.Millisecond).
		Then(func() {}).
		WaitForFrameCount(2).
		WaitUntilTimeout(func() bool { return false }, 3*time.Second).
		WaitManual()

	h.tick(1500 * time.Millisecond)
	g := newGolden(t)
	g.Assert(t, "describe_pending", []byte(s.Describe()))

	s.Cancel("door destroyed")
	g.Assert(t, "describe_cancelled", []byte(s.Describe()))
}

func TestDescribe_RealTimeHeader(t *testing.T) {
	h := newHarness(t)
	s := h.seq(t, "wall").InRealTime().WaitForFrame()
	newGolden(t).Assert(t, "describe_wall", []byte(s.Describe()))
}
