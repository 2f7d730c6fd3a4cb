package model

// All timestamps are unix epoch milliseconds.

type Account struct {
	ID        string
	PublicKey string
	CreatedAt int64
}

// Machine is a client-declared durable identity for one daemon/device
// instance. The (AccountID, ID) pair is unique; ID is chosen by the client.
// DataEncryptionKey is written at creation and never mutated afterwards.
type Machine struct {
	ID                 string
	AccountID          string
	Metadata           string
	MetadataVersion    int
	DaemonState        *string
	DaemonStateVersion int
	DataEncryptionKey  []byte
	Seq                int64
	Active             bool
	LastActiveAt       int64
	CreatedAt          int64
	UpdatedAt          int64
}

// Session is the ephemeral-activity counterpart of Machine, keyed by a
// client-supplied tag unique per account.
type Session struct {
	ID                string
	AccountID         string
	Tag               string
	Metadata          string
	MetadataVersion   int
	AgentState        *string
	AgentStateVersion int
	Active            bool
	LastActiveAt      int64
	CreatedAt         int64
	UpdatedAt         int64
}
