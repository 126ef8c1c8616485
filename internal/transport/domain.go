package transport

import "time"

// Status represents the lifecycle of a transport.
type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Transport is a scheduled haul. ConnectedTransportID, when set, points at
// the transport this one travels together with; the linkage layer owns
// that field and leaves the rest of the row to the CRUD handlers.
type Transport struct {
	ID                   int64     `json:"id"`
	Reference            string    `json:"reference"`
	Status               Status    `json:"status"`
	DriverName           *string   `json:"driver_name,omitempty"`
	VehicleNumber        *string   `json:"vehicle_number,omitempty"`
	ScheduledAt          time.Time `json:"scheduled_at"`
	ConnectedTransportID *int64    `json:"connected_transport_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// LinkageView is the cached read model for a transport's linkage state:
// its own outgoing pointer plus every transport pointing at it.
type LinkageView struct {
	Transport   Transport `json:"transport"`
	IncomingIDs []int64   `json:"incoming_ids"`
}
