package node

import "sync/atomic"

const (
	capabilityWalletInfo = "walletinfo"
	capabilityChainInfo  = "blockchaininfo"
)

// capabilities holds the two preferred-endpoint flags. They start enabled and
// only ever move from true to false for the life of the client.
type capabilities struct {
	walletInfo atomic.Bool
	chainInfo  atomic.Bool
}

func newCapabilities() *capabilities {
	c := &capabilities{}
	c.walletInfo.Store(true)
	c.chainInfo.Store(true)
	return c
}

func (c *capabilities) walletInfoSupported() bool { return c.walletInfo.Load() }
func (c *capabilities) chainInfoSupported() bool  { return c.chainInfo.Load() }

// downgradeWalletInfo reports whether this call performed the transition.
func (c *capabilities) downgradeWalletInfo() bool { return c.walletInfo.CompareAndSwap(true, false) }
func (c *capabilities) downgradeChainInfo() bool  { return c.chainInfo.CompareAndSwap(true, false) }

// CapabilityFlags is a snapshot of the node features the client still uses.
type CapabilityFlags struct {
	WalletInfoSupported bool `json:"wallet_info_supported"`
	ChainInfoSupported  bool `json:"chain_info_supported"`
}
