package link_test

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/netpair/api"
	"github.com/momentics/netpair/link"
)

func TestTransmitSyncDeliversInline(t *testing.T) {
	f, upper := newPair(t, link.DefaultConfig())
	ep0, ep1 := endpoints(t, f)

	payload := frame(100, 7)
	require.Nil(t, ep0.Transmit(payload))

	got := upper.Frames(api.Endpoint1)
	require.Len(t, got, 1)
	assert.Equal(t, payload, got[0])

	assert.Equal(t, api.Stats{TxPackets: 1, TxBytes: 100}, ep0.Stats())
	assert.Equal(t, api.Stats{RxPackets: 1, RxBytes: 100}, ep1.Stats())
	assert.Equal(t, 0, ep0.Pending())
	assert.False(t, f.Watchdog().Armed(ep0))
}

func TestTransmitCopiesCallerFrame(t *testing.T) {
	f, upper := newPair(t, budgeted(4))
	ep0, ep1 := endpoints(t, f)

	payload := frame(80, 1)
	want := bytes.Clone(payload)
	require.Nil(t, ep0.Transmit(payload))
	payload[0] = 0xff

	_, err := ep1.Poll(4)
	require.Nil(t, err)
	assert.Equal(t, [][]byte{want}, upper.Frames(api.Endpoint1))
}

func TestTransmitPadsShortFrames(t *testing.T) {
	f, upper := newPair(t, link.DefaultConfig())
	ep0, ep1 := endpoints(t, f)

	require.Nil(t, ep0.Transmit([]byte{1, 2, 3}))

	got := upper.Frames(api.Endpoint1)
	require.Len(t, got, 1)
	want := make([]byte, api.MinFrameLen)
	copy(want, []byte{1, 2, 3})
	assert.Equal(t, want, got[0])
	assert.Equal(t, uint64(api.MinFrameLen), ep1.Stats().RxBytes)
	assert.Equal(t, uint64(api.MinFrameLen), ep0.Stats().TxBytes)
}

// Pool of one: the first frame holds the only receive buffer until the
// peer polls, so the second transmit is suspended until then.
func TestSuspendAndResumeOnPoolExhaustion(t *testing.T) {
	f, upper := newPair(t, budgeted(1))
	ep0, ep1 := endpoints(t, f)

	require.Nil(t, ep0.Transmit(frame(64, 1)))
	err := ep0.Transmit(frame(64, 2))
	require.ErrorIs(t, err, api.ErrSuspended)
	assert.Equal(t, 0, upper.Resumes(api.Endpoint0))
	assert.Equal(t, uint64(1), ep1.PoolStats().Exhaustions)
	// The staging buffer of the refused frame went back.
	assert.Equal(t, 1, ep0.PoolStats().Free)

	n, err := ep1.Poll(2)
	require.Nil(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, upper.Resumes(api.Endpoint0))

	require.Nil(t, ep0.Transmit(frame(64, 3)))
	_, err = ep1.Poll(2)
	require.Nil(t, err)

	got := upper.Frames(api.Endpoint1)
	require.Len(t, got, 2)
	assert.Equal(t, byte(1), got[0][0])
	assert.Equal(t, byte(3), got[1][0])
}

func TestLockupStopsQueueUntilWatchdogRecovers(t *testing.T) {
	cfg := link.DefaultConfig()
	cfg.LockupModulus = 3
	cfg.WatchdogTimeout = 20 * time.Millisecond
	f, upper := newPair(t, cfg)
	ep0, ep1 := endpoints(t, f)

	for i := 0; i < 3; i++ {
		require.Nil(t, ep0.Transmit(frame(64, byte(i))))
	}
	assert.Equal(t, 1, ep0.Pending())
	assert.True(t, ep0.Stopped())
	assert.Equal(t, uint64(2), ep0.Stats().TxPackets)
	assert.Equal(t, uint64(3), ep1.Stats().RxPackets)
	assert.ErrorIs(t, ep0.Transmit(frame(64, 9)), api.ErrSuspended)

	waitFor(t, func() bool { return ep0.Pending() == 0 })
	waitFor(t, func() bool { return upper.Resumes(api.Endpoint0) == 1 })
	assert.False(t, ep0.Stopped())

	// Give a spurious second recovery a chance to show up.
	time.Sleep(3 * cfg.WatchdogTimeout)
	st := ep0.Stats()
	assert.Equal(t, uint64(1), st.TxErrors)
	assert.Equal(t, uint64(3), st.TxPackets)
	assert.Equal(t, uint64(1), f.Watchdog().Recoveries())
	assert.Equal(t, ep0.PoolStats().Capacity, ep0.PoolStats().Free)

	require.Nil(t, ep0.Transmit(frame(64, 4)))
	assert.Equal(t, 4, upper.Delivered(api.Endpoint1))
}

func TestLockupWithSinglePool(t *testing.T) {
	cfg := link.DefaultConfig()
	cfg.PoolSize = 1
	cfg.LockupModulus = 1
	cfg.WatchdogTimeout = 10 * time.Millisecond
	f, upper := newPair(t, cfg)
	ep0, _ := endpoints(t, f)

	require.Nil(t, ep0.Transmit(frame(64, 1)))
	assert.ErrorIs(t, ep0.Transmit(frame(64, 2)), api.ErrSuspended)

	waitFor(t, func() bool { return upper.Resumes(api.Endpoint0) >= 1 })
	require.Nil(t, ep0.Transmit(frame(64, 3)))
	waitFor(t, func() bool { return ep0.Stats().TxErrors == 2 })
}

func TestSetLockupAtRuntime(t *testing.T) {
	f, _ := newPair(t, link.DefaultConfig())
	ep0, _ := endpoints(t, f)

	assert.ErrorIs(t, ep0.SetLockup(-1), api.ErrRejected)
	require.Nil(t, ep0.SetLockup(2))
	assert.Equal(t, 2, ep0.Lockup())

	require.Nil(t, ep0.Transmit(frame(64, 1)))
	assert.False(t, ep0.Stopped())
	require.Nil(t, ep0.Transmit(frame(64, 2)))
	assert.True(t, ep0.Stopped())
}

func TestBudgetedPollCycle(t *testing.T) {
	polls := &link.ManualPoll{}
	f, upper := newPair(t, budgeted(8), link.WithPollScheduler(polls))
	ep0, ep1 := endpoints(t, f)

	for i := 0; i < 5; i++ {
		require.Nil(t, ep0.Transmit(frame(64, byte(i))))
	}
	assert.Equal(t, 5, ep1.Queued())
	assert.Equal(t, 0, upper.Delivered(api.Endpoint1))
	assert.Equal(t, api.Polling, ep1.RxState())
	// Notifications are masked while polling.
	assert.Equal(t, 1, polls.Requests())

	steps := []struct {
		handled int
		total   int
		state   api.RxState
	}{
		{2, 2, api.Polling},
		{2, 4, api.Polling},
		{1, 5, api.InterruptDriven},
	}
	for i, s := range steps {
		n, err := ep1.Poll(2)
		require.Nil(t, err)
		assert.Equal(t, s.handled, n, "poll %d", i)
		assert.Equal(t, s.total, upper.Delivered(api.Endpoint1), "poll %d", i)
		assert.Equal(t, s.state, ep1.RxState(), "poll %d", i)
	}

	// Polling an empty queue changes nothing.
	n, err := ep1.Poll(2)
	require.Nil(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, api.InterruptDriven, ep1.RxState())

	// The next frame re-arms notification.
	require.Nil(t, ep0.Transmit(frame(64, 9)))
	assert.Equal(t, 2, polls.Requests())
	handled, err := polls.Run(2)
	require.Nil(t, err)
	assert.Equal(t, 1, handled)
	assert.Equal(t, api.InterruptDriven, ep1.RxState())
}

func TestPollArguments(t *testing.T) {
	f, _ := newPair(t, link.DefaultConfig())
	ep0, _ := endpoints(t, f)
	_, err := ep0.Poll(2)
	assert.ErrorIs(t, err, api.ErrNotBudgeted)

	g, _ := newPair(t, budgeted(2))
	ep1, err := g.Endpoint(api.Endpoint1)
	require.Nil(t, err)
	_, err = ep1.Poll(0)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	assert.ErrorIs(t, err, api.ErrRejected)
}

func TestDeliveryOrderIsFIFO(t *testing.T) {
	for _, mode := range []api.Mode{api.ModeSync, api.ModeBudgeted} {
		t.Run(mode.String(), func(t *testing.T) {
			cfg := link.DefaultConfig()
			cfg.Mode = mode
			cfg.PoolSize = 16
			polls := &link.ManualPoll{}
			f, upper := newPair(t, cfg, link.WithPollScheduler(polls))
			ep0, _ := endpoints(t, f)

			var want []byte
			for round := 0; round < 4; round++ {
				for i := 0; i < 10; i++ {
					tag := byte(round*10 + i)
					require.Nil(t, ep0.Transmit(frame(64, tag)))
					want = append(want, tag)
				}
				if mode == api.ModeBudgeted {
					_, err := polls.Run(3)
					require.Nil(t, err)
				}
			}

			var got []byte
			for _, fr := range upper.Frames(api.Endpoint1) {
				got = append(got, fr[0])
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("delivery order (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeliverErrorCountsDrop(t *testing.T) {
	f, upper := newPair(t, link.DefaultConfig())
	ep0, ep1 := endpoints(t, f)

	upper.SetDeliverError(errors.New("no memory"))
	require.Nil(t, ep0.Transmit(frame(64, 1)))
	upper.SetDeliverError(nil)
	require.Nil(t, ep0.Transmit(frame(64, 2)))

	st := ep1.Stats()
	assert.Equal(t, uint64(1), st.RxDropped)
	assert.Equal(t, uint64(1), st.RxPackets)
	assert.Equal(t, ep1.PoolStats().Capacity, ep1.PoolStats().Free)
}

func TestSetMTU(t *testing.T) {
	f, _ := newPair(t, link.DefaultConfig())
	ep0, ep1 := endpoints(t, f)

	for _, mtu := range []int{67, 1501, 0, -5} {
		assert.ErrorIs(t, ep0.SetMTU(mtu), api.ErrRejected, "mtu %d", mtu)
		assert.Equal(t, 1500, ep0.MTU())
	}
	require.Nil(t, ep0.SetMTU(1500))

	require.Nil(t, ep0.Transmit(make([]byte, api.HeaderLen+1500)))
	err := ep0.Transmit(make([]byte, api.HeaderLen+1501))
	assert.ErrorIs(t, err, api.ErrFrameTooLarge)
	assert.ErrorIs(t, err, api.ErrRejected)
	assert.Equal(t, uint64(1), ep0.Stats().TxDropped)
	assert.Equal(t, uint64(1), ep1.Stats().RxPackets)

	require.Nil(t, ep0.SetMTU(68))
	assert.ErrorIs(t, ep0.Transmit(make([]byte, 83)), api.ErrFrameTooLarge)
	require.Nil(t, ep0.Transmit(make([]byte, 82)))
}

// An upper layer that answers every frame from inside DeliverFrame.
func TestEchoFromDeliverCallback(t *testing.T) {
	f, upper := newPair(t, link.DefaultConfig())
	ep0, ep1 := endpoints(t, f)

	var echoErrs []error
	upper.OnDeliver(func(id api.EndpointID, fr []byte) {
		if id == api.Endpoint1 {
			echoErrs = append(echoErrs, ep1.Transmit(fr))
		}
	})
	for i := 0; i < 5; i++ {
		require.Nil(t, ep0.Transmit(frame(64, byte(i))))
	}

	assert.Equal(t, make([]error, 5), echoErrs)
	assert.Equal(t, 5, upper.Delivered(api.Endpoint0))
	for i, fr := range upper.Frames(api.Endpoint0) {
		assert.Equal(t, byte(i), fr[0], fmt.Sprintf("frame %d", i))
	}
}
