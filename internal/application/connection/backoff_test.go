package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayAfterFailures(t *testing.T) {
	const initial = 100 * time.Millisecond
	const ceiling = 2 * time.Second

	b := NewBackoff(initial, ceiling)
	for n := 0; n < 10; n++ {
		want := initial << n
		if want > ceiling {
			want = ceiling
		}
		assert.Equal(t, want, b.Delay(), "after %d failures", n)
		b.Fail()
	}
}

func TestBackoffFirstFailureWaitsInitial(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute)

	assert.Equal(t, time.Second, b.Fail())
	assert.Equal(t, 2*time.Second, b.Fail())
	assert.Equal(t, 4*time.Second, b.Fail())
	assert.Equal(t, 3, b.Failures())
}

func TestBackoffResetAfterSuccess(t *testing.T) {
	b := NewBackoff(time.Second, 8*time.Second)
	for i := 0; i < 6; i++ {
		b.Fail()
	}
	assert.Equal(t, 8*time.Second, b.Delay())

	b.Reset()

	assert.Equal(t, time.Second, b.Delay())
	assert.Zero(t, b.Failures())
}

func TestBackoffCeilingNeverOverflows(t *testing.T) {
	b := NewBackoff(time.Second, time.Hour)
	for i := 0; i < 200; i++ {
		b.Fail()
	}
	assert.Equal(t, time.Hour, b.Delay())
}

func TestNewBackoffDefaults(t *testing.T) {
	b := NewBackoff(0, 0)
	assert.Equal(t, DefaultBackoffInitial, b.Initial)
	assert.Equal(t, DefaultBackoffInitial, b.Ceiling)
}
