package ringbuf

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glebovdev/rtap/internal/pcm"
)

var testFormat = pcm.Format{SampleRate: 8000, Channels: 2}

func frameOf(n int, value float64) pcm.Frame {
	samples := make([][2]float64, n)
	for i := range samples {
		samples[i] = [2]float64{value, value}
	}
	return pcm.Frame{Samples: samples, Format: testFormat}
}

func TestNewSizesByTime(t *testing.T) {
	b := New(testFormat, 2*time.Second)
	assert.Equal(t, 16000, b.Capacity())

	b = New(pcm.Format{SampleRate: 44100, Channels: 2}, 500*time.Millisecond)
	assert.Equal(t, 22050, b.Capacity())
}

func TestPushPopOrder(t *testing.T) {
	b := New(testFormat, time.Second)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Push(ctx, frameOf(100, float64(i))))
	}
	assert.Equal(t, 500, b.Len())
	assert.Equal(t, 5, b.Frames())

	for i := 0; i < 5; i++ {
		f, err := b.Pop(0)
		require.NoError(t, err)
		assert.Equal(t, float64(i), f.Samples[0][0])
	}
	assert.Equal(t, 0, b.Len())
}

func TestPopEmptyReturnsUnderrunWithinWait(t *testing.T) {
	b := New(testFormat, time.Second)

	start := time.Now()
	_, err := b.Pop(20 * time.Millisecond)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrUnderrun)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.Equal(t, int64(1), b.Stats().Underruns)

	_, err = b.Pop(0)
	require.ErrorIs(t, err, ErrUnderrun)
}

func TestPopWakesOnPush(t *testing.T) {
	b := New(testFormat, time.Second)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = b.Push(context.Background(), frameOf(10, 1))
	}()

	f, err := b.Pop(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 10, f.Len())
}

func TestPushBlocksWhenFullUntilPop(t *testing.T) {
	b := New(testFormat, 100*time.Millisecond) // 800 samples
	ctx := context.Background()
	require.NoError(t, b.Push(ctx, frameOf(800, 1)))

	done := make(chan error, 1)
	go func() {
		done <- b.Push(ctx, frameOf(400, 2))
	}()

	select {
	case err := <-done:
		t.Fatalf("push on full buffer returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	assert.True(t, b.Full())

	_, err := b.Pop(0)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("push did not resume after pop")
	}
	assert.Equal(t, 400, b.Len())
}

func TestPushCancelled(t *testing.T) {
	b := New(testFormat, 100*time.Millisecond)
	require.NoError(t, b.Push(context.Background(), frameOf(800, 1)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- b.Push(ctx, frameOf(1, 1))
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled push did not return")
	}
}

func TestPushRejectsOversizedAndMismatchedFrames(t *testing.T) {
	b := New(testFormat, 100*time.Millisecond)

	err := b.Push(context.Background(), frameOf(801, 1))
	require.ErrorIs(t, err, ErrFrameTooLarge)

	other := frameOf(10, 1)
	other.Format = pcm.Format{SampleRate: 44100, Channels: 2}
	err = b.Push(context.Background(), other)
	require.ErrorIs(t, err, ErrFormatMismatch)
}

func TestClearUnblocksProducer(t *testing.T) {
	b := New(testFormat, 100*time.Millisecond)
	require.NoError(t, b.Push(context.Background(), frameOf(800, 1)))

	done := make(chan error, 1)
	go func() {
		done <- b.Push(context.Background(), frameOf(100, 2))
	}()
	time.Sleep(10 * time.Millisecond)
	b.Clear()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("push did not resume after clear")
	}
	assert.Equal(t, 100, b.Len())

	f, err := b.Pop(0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, f.Samples[0][0])
}

func TestCloseUnblocksProducer(t *testing.T) {
	b := New(testFormat, 100*time.Millisecond)
	require.NoError(t, b.Push(context.Background(), frameOf(800, 1)))

	done := make(chan error, 1)
	go func() {
		done <- b.Push(context.Background(), frameOf(100, 2))
	}()
	time.Sleep(10 * time.Millisecond)
	b.Close()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("push did not return after close")
	}

	_, err := b.Pop(0)
	require.NoError(t, err, "buffered frames stay readable after close")
	_, err = b.Pop(0)
	require.ErrorIs(t, err, ErrClosed)
}

func TestSlotGrowthKeepsOrder(t *testing.T) {
	b := New(testFormat, time.Second)
	ctx := context.Background()

	// wrap the head before growing
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Push(ctx, frameOf(1, -1)))
	}
	for i := 0; i < 10; i++ {
		_, err := b.Pop(0)
		require.NoError(t, err)
	}
	for i := 0; i < 3*initialSlots; i++ {
		require.NoError(t, b.Push(ctx, frameOf(1, float64(i))))
	}
	for i := 0; i < 3*initialSlots; i++ {
		f, err := b.Pop(0)
		require.NoError(t, err)
		require.Equal(t, float64(i), f.Samples[0][0])
	}
}

func TestConcurrentNeverExceedsCapacity(t *testing.T) {
	b := New(testFormat, 50*time.Millisecond) // 400 samples
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	var violation error
	var violationMu sync.Mutex
	check := func() {
		if n := b.Len(); n > b.Capacity() {
			violationMu.Lock()
			violation = errors.New("buffer exceeded capacity")
			violationMu.Unlock()
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewSource(1))
		next := 0.0
		for i := 0; i < 2000; i++ {
			if err := b.Push(ctx, frameOf(1+rng.Intn(120), next)); err != nil {
				return
			}
			next++
			check()
		}
	}()

	last := -1.0
	rng := rand.New(rand.NewSource(2))
	deadline := time.Now().Add(5 * time.Second)
	for received := 0; received < 2000 && time.Now().Before(deadline); {
		wait := time.Duration(rng.Intn(3)) * time.Millisecond
		f, err := b.Pop(wait)
		check()
		if errors.Is(err, ErrUnderrun) {
			continue
		}
		require.NoError(t, err)
		require.Greater(t, f.Samples[0][0], last, "frames must come out in push order")
		last = f.Samples[0][0]
		received++
	}
	cancel()
	wg.Wait()

	violationMu.Lock()
	defer violationMu.Unlock()
	require.NoError(t, violation)
	assert.Equal(t, 1999.0, last)
}
