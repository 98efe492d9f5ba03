package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	WorldID         string         `json:"world_id"`
	TickRateHz      int            `json:"tick_rate_hz"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type CatalogDigests struct {
	ItemPalette        DigestRef `json:"item_palette"`
	ItemsDigest        string    `json:"items_digest"`
	MinerRecipesDigest string    `json:"miner_recipes_digest"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

type StackMsg struct {
	Item          string         `json:"item"`
	Count         int            `json:"count"`
	Durability    int            `json:"durability,omitempty"`
	MaxDurability int            `json:"max_durability,omitempty"`
	Meta          map[string]int `json:"meta,omitempty"`
}

// ACCESS (client -> server). Side is one of NONE, DOWN, UP, NORTH, SOUTH, WEST, EAST;
// an empty side means NONE (the combined view).
type AccessMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	ReqID           string    `json:"req_id"`
	Pos             [3]int    `json:"pos"`
	Side            string    `json:"side,omitempty"`
	Op              string    `json:"op"`
	Slot            int       `json:"slot,omitempty"`
	Count           int       `json:"count,omitempty"`
	Stack           *StackMsg `json:"stack,omitempty"`
	Simulate        bool      `json:"simulate,omitempty"`
}

// ACCESS_RESULT (server -> client)
type AccessResultMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ReqID           string     `json:"req_id"`
	Tick            uint64     `json:"tick"`
	OK              bool       `json:"ok"`
	Code            string     `json:"code,omitempty"`
	Message         string     `json:"message,omitempty"`
	NodeID          string     `json:"node_id,omitempty"`
	View            string     `json:"view,omitempty"`
	Slots           []StackMsg `json:"slots,omitempty"`
	Moved           *StackMsg  `json:"moved,omitempty"`
	Remainder       *StackMsg  `json:"remainder,omitempty"`
}
