package node

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// BlockTemplate is a getblocktemplate result handed to the dispatcher.
// The dispatcher owns it once delivered.
type BlockTemplate struct {
	Raw               json.RawMessage // the "result" object, numbers untouched
	PreviousBlockHash string
	PrevHash          chainhash.Hash
	Height            int64
	WorkID            uint64
	LongPollID        string
	ReceivedAt        time.Time
}

// Decode unmarshals the raw template into v, e.g. a *btcjson.GetBlockTemplateResult.
func (t *BlockTemplate) Decode(v interface{}) error {
	return json.Unmarshal(t.Raw, v)
}

// WorkID derives the de-duplication key of a template: the first 16 hex
// characters of the previous block hash read as a big-endian integer.
func WorkID(previousBlockHash string) (uint64, error) {
	if len(previousBlockHash) < 16 {
		return 0, fmt.Errorf("previous block hash too short: %d chars", len(previousBlockHash))
	}
	return strconv.ParseUint(previousBlockHash[:16], 16, 64)
}
