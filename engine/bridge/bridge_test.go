package bridge_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gitlab.com/driverk/driverk"
	"gitlab.com/driverk/engine/bridge"
	"gitlab.com/driverk/mock"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunReturnsResultUnchanged(t *testing.T) {
	client := mock.NewClient()
	h := client.AddElement(mock.Element{Tag: "button", Attributes: map[string]string{"class": "submit"}})
	b := bridge.New(client)
	defer b.Close()

	found, err := bridge.Run(b, func(ctx context.Context, c driverk.ProtocolClient) ([]driverk.ElementHandle, error) {
		return c.FindElements(ctx, driverk.CSS("button.submit"), nil)
	})
	require.NoError(t, err)
	require.Equal(t, []driverk.ElementHandle{h}, found)

	opErr := errors.New("custom failure")
	_, err = bridge.Run(b, func(ctx context.Context, c driverk.ProtocolClient) (int, error) {
		return 0, opErr
	})
	require.True(t, err == opErr, "expected the exact error back, got %v", err)

	protoErr := &driverk.ProtocolErr{Command: "find elements", Status: 500}
	client.FailNext(mock.MethodFindElements, protoErr)
	err = b.Do(func(ctx context.Context, c driverk.ProtocolClient) error {
		_, err := c.FindElements(ctx, driverk.CSS("button"), nil)
		return err
	})
	require.True(t, err == protoErr, "expected the protocol error back, got %v", err)
}

func TestCallersNeverOverlap(t *testing.T) {
	b := bridge.New(mock.NewClient())
	defer b.Close()

	var active, maxActive, total int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				err := b.Do(func(ctx context.Context, c driverk.ProtocolClient) error {
					n := atomic.AddInt32(&active, 1)
					for {
						m := atomic.LoadInt32(&maxActive)
						if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
							break
						}
					}
					if !b.Busy() {
						t.Errorf("bridge should report busy while an operation runs")
					}
					time.Sleep(time.Millisecond)
					atomic.AddInt32(&total, 1)
					atomic.AddInt32(&active, -1)
					return nil
				})
				if err != nil {
					t.Errorf("unexpected error: %s", err)
				}
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
	require.Equal(t, int32(40), atomic.LoadInt32(&total))
	require.False(t, b.Busy())
}

func TestCloseReleasesBlockedCaller(t *testing.T) {
	b := bridge.New(mock.NewClient())

	started := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Do(func(ctx context.Context, c driverk.ProtocolClient) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	<-started
	require.NoError(t, b.Close())

	select {
	case err := <-errCh:
		require.True(t, errors.Is(err, driverk.ErrSessionClosed), "got %v", err)
	case <-time.After(time.Second):
		t.Fatalf("caller was not released by Close")
	}
}

func TestCloseDoesNotBlockPastTimeout(t *testing.T) {
	b := bridge.New(mock.NewClient(), bridge.WithCloseTimeout(50*time.Millisecond))

	started := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Do(func(ctx context.Context, c driverk.ProtocolClient) error {
			close(started)
			// ignores cancellation
			time.Sleep(300 * time.Millisecond)
			return nil
		})
	}()

	<-started
	start := time.Now()
	err := b.Close()
	require.True(t, errors.Is(err, driverk.ErrCloseTimedOut), "got %v", err)
	require.Less(t, int64(time.Since(start)), int64(250*time.Millisecond))

	require.True(t, errors.Is(<-errCh, driverk.ErrSessionClosed))
	// let the stuck operation drain before goleak looks
	time.Sleep(300 * time.Millisecond)
}

func TestClosedBridgeRejectsOperations(t *testing.T) {
	closes := int32(0)
	b := bridge.New(mock.NewClient(), bridge.WithCloser(func(ctx context.Context) error {
		atomic.AddInt32(&closes, 1)
		return nil
	}))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	require.True(t, b.IsClosed())
	require.Equal(t, int32(1), atomic.LoadInt32(&closes))

	ran := false
	err := b.Do(func(ctx context.Context, c driverk.ProtocolClient) error {
		ran = true
		return nil
	})
	require.True(t, errors.Is(err, driverk.ErrSessionClosed))
	require.False(t, ran)

	_, err = bridge.Run(b, func(ctx context.Context, c driverk.ProtocolClient) (string, error) {
		return "never", nil
	})
	require.True(t, errors.Is(err, driverk.ErrSessionClosed))
}

func TestCloserErrorIsReturned(t *testing.T) {
	closeErr := errors.New("delete session failed")
	b := bridge.New(mock.NewClient(), bridge.WithCloser(func(ctx context.Context) error {
		return closeErr
	}))
	err := b.Close()
	require.Error(t, err)
	require.True(t, errors.Is(err, closeErr))
}

func TestRateLimitPacesOperations(t *testing.T) {
	b := bridge.New(mock.NewClient(), bridge.WithRateLimit(20, 1))
	defer b.Close()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Do(func(ctx context.Context, c driverk.ProtocolClient) error { return nil }))
	}
	// the first is free, the other four wait 50ms each
	require.GreaterOrEqual(t, int64(time.Since(start)), int64(180*time.Millisecond))
}

func TestPanicBecomesError(t *testing.T) {
	b := bridge.New(mock.NewClient())
	defer b.Close()

	err := b.Do(func(ctx context.Context, c driverk.ProtocolClient) error {
		panic("boom")
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")

	// the bridge keeps serving
	require.NoError(t, b.Do(func(ctx context.Context, c driverk.ProtocolClient) error { return nil }))
}

func TestBridgeIDsAreUnique(t *testing.T) {
	a := bridge.New(mock.NewClient())
	b := bridge.New(mock.NewClient())
	defer a.Close()
	defer b.Close()
	require.NotEqual(t, a.ID(), b.ID())
}
