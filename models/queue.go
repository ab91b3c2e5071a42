package models

// PositionLost is the sentinel position reported when the admission service
// no longer knows the caller, or when a position check could not be made.
const PositionLost = -1

// QueueTicket is the caller's admission record for one event.
type QueueTicket struct {
	QueueID      string `json:"queue_id"`
	EventID      string `json:"event_id"`
	Position     int    `json:"position"`
	Total        int    `json:"total"`
	IsProcessing bool   `json:"is_processing"`

	// Err carries the transport failure that produced a sentinel ticket.
	// Position checks never fail outright; they degrade to a lost position.
	Err string `json:"error,omitempty"`
}

// Ready reports whether the holder may proceed to payment. Position 0 and 1
// are both ready so a caller advanced between checks is not bounced.
func (t *QueueTicket) Ready() bool {
	if t == nil {
		return false
	}
	if t.Position == PositionLost {
		return false
	}
	return t.Position <= 1 || t.IsProcessing
}

// Lost reports whether the admission service has dropped the holder.
func (t *QueueTicket) Lost() bool {
	return t != nil && t.Position == PositionLost
}
