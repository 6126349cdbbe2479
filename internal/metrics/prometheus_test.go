package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPromRecorderCounts(t *testing.T) {
	p, err := NewPromRecorder("test")
	require.NoError(t, err)

	p.BlockSubmitted(true)
	p.BlockSubmitted(false)
	p.BlockSubmitted(false)
	p.CapabilityDowngraded("walletinfo")
	p.WorkDispatched(812345)
	p.RPCCall("getbalance", true, 15*time.Millisecond)
	p.BalanceObserved(150000000, 25000000)

	require.Equal(t, 1.0, testutil.ToFloat64(p.blocksSubmitted.WithLabelValues("success")))
	require.Equal(t, 2.0, testutil.ToFloat64(p.blocksSubmitted.WithLabelValues("failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(p.capabilityDowngrades.WithLabelValues("walletinfo")))
	require.Equal(t, 812345.0, testutil.ToFloat64(p.lastWorkHeight))
	require.Equal(t, 1.0, testutil.ToFloat64(p.rpcCalls.WithLabelValues("getbalance", "success")))
	require.Equal(t, 25000000.0, testutil.ToFloat64(p.walletImmatured))
}
