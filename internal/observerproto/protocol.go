package observerproto

// Version is the observer protocol version (separate from the access WS protocol).
const Version = "0.1"

// Message types.
const (
	TypeSubscribe   = "SUBSCRIBE"
	TypeNodeSync    = "NODE_SYNC"
	TypeNodeRemoved = "NODE_REMOVED"
)

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Optional: only receive updates for these node ids. Empty means all nodes.
	NodeIDs []string `json:"node_ids,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	Nodes           []NodeState `json:"nodes"`
}

type WorldParams struct {
	TickRateHz        int   `json:"tick_rate_hz"`
	Seed              int64 `json:"seed"`
	DefaultCycleTicks int   `json:"default_cycle_ticks"`
	SyncEveryTicks    int   `json:"sync_every_ticks"`
	OutputSlots       int   `json:"output_slots"`
}

// NodeState is the mirrored slice of one rift miner.
type NodeState struct {
	ID  string `json:"id"`
	Pos [3]int `json:"pos"`

	CycleTimeRemaining int `json:"cycle_time_remaining"`
	CycleDuration      int `json:"cycle_duration"`
}

// Server -> Client. Sent on ticks where at least one node has a pending sync.
// Full marks a resync carrying every watched node; clients drop nodes it does not list.
type NodeSyncMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Tick            uint64      `json:"tick"`
	Full            bool        `json:"full,omitempty"`
	Nodes           []NodeState `json:"nodes"`
}

// Server -> Client. A node left the world; clients should drop it.
type NodeRemovedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	ID              string `json:"id"`
	Pos             [3]int `json:"pos"`
}
