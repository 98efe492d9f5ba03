package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello        = "HELLO"
	TypeWelcome      = "WELCOME"
	TypeAccess       = "ACCESS"
	TypeAccessResult = "ACCESS_RESULT"
)

// Access operations.
const (
	OpPeek      = "PEEK"
	OpInsert    = "INSERT"
	OpExtract   = "EXTRACT"
	OpInsertAny = "INSERT_ANY"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
