package config

import "strings"

// Coin describes the per-coin parameters the node adapter needs.
type Coin struct {
	Name             string
	RationalPartSize int64
	DefaultRPCPort   uint16
	SegwitEnabled    bool
}

var coins = map[string]Coin{
	"BTC":         {Name: "BTC", RationalPartSize: 100000000, DefaultRPCPort: 8332, SegwitEnabled: true},
	"BTC.testnet": {Name: "BTC.testnet", RationalPartSize: 100000000, DefaultRPCPort: 18332, SegwitEnabled: true},
	"BTC.regtest": {Name: "BTC.regtest", RationalPartSize: 100000000, DefaultRPCPort: 18443, SegwitEnabled: true},
	"LTC":         {Name: "LTC", RationalPartSize: 100000000, DefaultRPCPort: 9332, SegwitEnabled: true},
	"LTC.testnet": {Name: "LTC.testnet", RationalPartSize: 100000000, DefaultRPCPort: 19332, SegwitEnabled: true},
	"BCH":         {Name: "BCH", RationalPartSize: 100000000, DefaultRPCPort: 8332},
	"DOGE":        {Name: "DOGE", RationalPartSize: 100000000, DefaultRPCPort: 22555},
	"DGB":         {Name: "DGB", RationalPartSize: 100000000, DefaultRPCPort: 14022, SegwitEnabled: true},
	"XPM":         {Name: "XPM", RationalPartSize: 100000000, DefaultRPCPort: 9912},
}

// LookupCoin finds a coin by name, case-insensitively on the ticker part.
func LookupCoin(name string) (Coin, bool) {
	ticker, suffix, found := strings.Cut(name, ".")
	key := strings.ToUpper(ticker)
	if found {
		key += "." + strings.ToLower(suffix)
	}
	c, ok := coins[key]
	return c, ok
}
