package types

import "encoding/json"

// Plugin name as registered with the host and used as the RPC namespace.
const PluginName = "PeerBanHelperAdapter"

// RPC method namespace on the Deluge web JSON endpoint.
const RPCNamespace = "peerbanhelperadapter"

type BlocklistResponse struct {
	Size int      `json:"size"`
	IPs  []string `json:"ips"`
}

type ConfigResponse struct {
	Blocklist []string `json:"blocklist"`
}

// RPCRequest is the request body of the Deluge web JSON endpoint.
type RPCRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     int64             `json:"id"`
}

type RPCErrorBody struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type RPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCErrorBody   `json:"error"`
	ID     int64           `json:"id"`
}

// Error codes used by the Deluge web JSON endpoint.
const (
	RPCErrNotAuthenticated = 1
	RPCErrUnknownMethod    = 2
	RPCErrCallFailed       = 3
)

// Update is a message pushed on the updates websocket.
type Update struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const UpdateTypeBlocklist = "blocklist-update"

type BlocklistUpdate struct {
	Size int `json:"size"`
}
