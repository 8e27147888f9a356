package model

// DecodeError is written for each input line that did not become a pool
// event. Record is the 1-based position among non-empty lines; the log
// fields stay zero when the line was not valid JSON.
type DecodeError struct {
	Record      int    `json:"record"`
	ChainID     uint64 `json:"chain_id,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
	LogIndex    uint64 `json:"log_index"`
	Pool        string `json:"pool,omitempty"`
	Topic0      string `json:"topic0,omitempty"`
	Error       string `json:"error"`
}
