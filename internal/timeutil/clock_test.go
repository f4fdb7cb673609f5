package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealClockNow(t *testing.T) {
	t.Parallel()

	before := time.Now()
	now := RealClock{}.Now()
	assert.False(t, now.Before(before))
}

func TestMockClockAdvanceFiresWaiters(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	assert.Equal(t, start, c.Now())

	ch := c.After(100 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("fired before the deadline")
	default:
	}

	c.Advance(50 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("fired halfway to the deadline")
	default:
	}

	c.Advance(50 * time.Millisecond)
	select {
	case ts := <-ch:
		assert.Equal(t, start.Add(100*time.Millisecond), ts)
	default:
		t.Fatal("did not fire at the deadline")
	}
}

func TestMockClockAfterNonPositiveFiresImmediately(t *testing.T) {
	t.Parallel()

	c := NewMockClock(time.Unix(0, 0))
	select {
	case <-c.After(0):
	default:
		t.Fatal("zero-duration After must fire immediately")
	}
}

func TestMockClockMultipleWaiters(t *testing.T) {
	t.Parallel()

	c := NewMockClock(time.Unix(100, 0))
	early := c.After(time.Second)
	late := c.After(time.Minute)

	c.Advance(2 * time.Second)
	require.Len(t, early, 1)
	assert.Empty(t, late)

	c.Advance(time.Minute)
	require.Len(t, late, 1)
}
