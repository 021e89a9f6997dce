package async

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countTo(n int, calls *int) *Stream[int] {
	return NewStream(context.Background(), func(_ context.Context, yield func(int) bool) error {
		*calls++
		for i := 1; i <= n; i++ {
			if !yield(i) {
				return nil
			}
		}
		return nil
	})
}

func TestCollectAll_PreservesYieldOrder(t *testing.T) {
	for _, n := range []int{0, 1, 5, 100} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			var calls int
			s := countTo(n, &calls)

			got, err := CollectAll(context.Background(), s)
			require.NoError(t, err)
			require.Len(t, got, n)
			for i, v := range got {
				assert.Equal(t, i+1, v)
			}

			// Terminal: further pulls report no value and do not re-enter the body.
			for i := 0; i < 3; i++ {
				_, ok, err := s.Next(context.Background())
				assert.NoError(t, err)
				assert.False(t, ok)
			}
			assert.Equal(t, 1, calls)
			assert.True(t, s.Done())
		})
	}
}

func TestStream_SuspendsBetweenPulls(t *testing.T) {
	var produced []int
	s := NewStream(context.Background(), func(_ context.Context, yield func(int) bool) error {
		for i := 0; i < 3; i++ {
			produced = append(produced, i)
			if !yield(i) {
				return nil
			}
		}
		return nil
	})

	assert.Empty(t, produced, "body must not run before the first pull")

	v, ok, err := s.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, v)
	assert.Equal(t, []int{0}, produced, "body must park at the first yield")

	_, _, _ = s.Next(context.Background())
	assert.Equal(t, []int{0, 1}, produced)
}

func TestStream_ErrorObservedOnceThenTerminal(t *testing.T) {
	boom := errors.New("boom")
	s := NewStream(context.Background(), func(_ context.Context, yield func(string) bool) error {
		if !yield("a") {
			return nil
		}
		return boom
	})

	v, ok, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok, err = s.Next(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)

	_, ok, err = s.Next(context.Background())
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, s.Err(), boom)
}

func TestStream_PanicBecomesError(t *testing.T) {
	s := NewStream(context.Background(), func(_ context.Context, yield func(int) bool) error {
		yield(1)
		panic("bad producer")
	})

	got, err := CollectAll(context.Background(), s)
	assert.Equal(t, []int{1}, got)
	var pe *PanicError
	assert.ErrorAs(t, err, &pe)
}

func TestStream_CloseStopsBody(t *testing.T) {
	stopped := make(chan struct{})
	s := NewStream(context.Background(), func(_ context.Context, yield func(int) bool) error {
		defer close(stopped)
		for i := 0; ; i++ {
			if !yield(i) {
				return nil
			}
		}
	})

	_, ok, _ := s.Next(context.Background())
	require.True(t, ok)

	s.Close()
	s.Close()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("body did not observe close")
	}
	_, ok, err := s.Next(context.Background())
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestStream_NextTask(t *testing.T) {
	s := FromSlice([]string{"x", "y"})

	var got []string
	for {
		item, err := s.NextTask().Get()
		require.NoError(t, err)
		if !item.OK {
			break
		}
		got = append(got, item.Value)
	}
	assert.Equal(t, []string{"x", "y"}, got)
}

func TestStream_CancelledContext(t *testing.T) {
	s := FromSlice([]int{1, 2, 3})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := s.Next(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, s.Done())
}

func TestFromChannel(t *testing.T) {
	values := make(chan string, 4)
	errs := make(chan error, 1)
	go func() {
		defer close(values)
		defer close(errs)
		for _, v := range []string{"he", "ll", "o"} {
			values <- v
		}
	}()

	got, err := CollectAll(context.Background(), FromChannel(context.Background(), values, errs))
	require.NoError(t, err)
	assert.Equal(t, []string{"he", "ll", "o"}, got)
}

func TestFromChannel_ProducerError(t *testing.T) {
	boom := errors.New("stream broke")
	values := make(chan int)
	errs := make(chan error, 1)
	go func() {
		values <- 1
		errs <- boom
		close(errs)
		close(values)
	}()

	got, err := CollectAll(context.Background(), FromChannel(context.Background(), values, errs))
	assert.Equal(t, []int{1}, got)
	assert.ErrorIs(t, err, boom)
}

func TestStream_Seq(t *testing.T) {
	var sum int
	for v := range FromSlice([]int{1, 2, 3, 4}).Seq(context.Background()) {
		if v == 4 {
			break
		}
		sum += v
	}
	assert.Equal(t, 6, sum)
}
