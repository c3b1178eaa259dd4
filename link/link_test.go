package link_test

import (
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/stretchr/testify/require"

	"github.com/momentics/netpair/api"
	"github.com/momentics/netpair/fake"
	"github.com/momentics/netpair/link"
)

var quiet = &log.Logger{Handler: discard.New(), Level: log.DebugLevel}

func newPair(t *testing.T, cfg link.Config, opts ...link.Option) (*link.Fabric, *fake.Upper) {
	t.Helper()
	upper := fake.NewUpper()
	f, err := link.NewFabric(cfg, upper, append([]link.Option{link.WithLogger(quiet)}, opts...)...)
	require.Nil(t, err)
	t.Cleanup(func() { f.Close() })
	return f, upper
}

func endpoints(t *testing.T, f *link.Fabric) (*link.Endpoint, *link.Endpoint) {
	t.Helper()
	ep0, err := f.Endpoint(api.Endpoint0)
	require.Nil(t, err)
	ep1, err := f.Endpoint(api.Endpoint1)
	require.Nil(t, err)
	return ep0, ep1
}

func budgeted(poolSize int) link.Config {
	cfg := link.DefaultConfig()
	cfg.Mode = api.ModeBudgeted
	cfg.PoolSize = poolSize
	return cfg
}

// frame returns an n byte frame whose first byte is tag.
func frame(n int, tag byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = tag + byte(i)
	}
	b[0] = tag
	return b
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond)
}
