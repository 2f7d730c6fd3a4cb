package events

import "syncplane/internal/model"

// Event bodies are a closed set of shapes, each carrying its own "t"
// discriminator so clients can switch on one field.

type VersionedValue struct {
	Version int    `json:"version"`
	Value   string `json:"value"`
}

// MachineView is the wire shape of a machine record. ActiveAt mirrors
// lastActiveAt under the name the API has always used.
type MachineView struct {
	ID                 string  `json:"id"`
	Metadata           string  `json:"metadata"`
	MetadataVersion    int     `json:"metadataVersion"`
	DaemonState        *string `json:"daemonState"`
	DaemonStateVersion int     `json:"daemonStateVersion"`
	DataEncryptionKey  []byte  `json:"dataEncryptionKey"`
	Active             bool    `json:"active"`
	ActiveAt           int64   `json:"activeAt"`
	CreatedAt          int64   `json:"createdAt"`
	UpdatedAt          int64   `json:"updatedAt"`
}

func NewMachineView(m model.Machine) MachineView {
	return MachineView{
		ID:                 m.ID,
		Metadata:           m.Metadata,
		MetadataVersion:    m.MetadataVersion,
		DaemonState:        m.DaemonState,
		DaemonStateVersion: m.DaemonStateVersion,
		DataEncryptionKey:  m.DataEncryptionKey,
		Active:             m.Active,
		ActiveAt:           m.LastActiveAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

// NewMachinePayload announces a freshly registered machine, including its
// data encryption key. Delivered user-scoped.
type NewMachinePayload struct {
	T       string      `json:"t"`
	Machine MachineView `json:"machine"`
}

func NewMachineUpdate(m model.Machine) NewMachinePayload {
	return NewMachinePayload{T: "new-machine", Machine: NewMachineView(m)}
}

// UpdateMachinePayload is the older metadata-update shape kept for clients
// that do not understand new-machine. It never carries the encryption key.
type UpdateMachinePayload struct {
	T         string          `json:"t"`
	MachineID string          `json:"machineId"`
	Metadata  *VersionedValue `json:"metadata,omitempty"`
}

func UpdateMachineMetadata(machineID string, version int, value string) UpdateMachinePayload {
	return UpdateMachinePayload{
		T:         "update-machine",
		MachineID: machineID,
		Metadata:  &VersionedValue{Version: version, Value: value},
	}
}

type SessionActivityPayload struct {
	T         string `json:"t"`
	SessionID string `json:"id"`
	Active    bool   `json:"active"`
	ActiveAt  int64  `json:"activeAt"`
}

func SessionActivity(sessionID string, active bool, activeAt int64) SessionActivityPayload {
	return SessionActivityPayload{T: "session-activity", SessionID: sessionID, Active: active, ActiveAt: activeAt}
}

type MachineActivityPayload struct {
	T         string `json:"t"`
	MachineID string `json:"machineId"`
	Active    bool   `json:"active"`
	ActiveAt  int64  `json:"activeAt"`
}

func MachineActivity(machineID string, active bool, activeAt int64) MachineActivityPayload {
	return MachineActivityPayload{T: "machine-activity", MachineID: machineID, Active: active, ActiveAt: activeAt}
}
