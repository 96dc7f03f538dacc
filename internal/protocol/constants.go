package protocol

const (
	DefaultChunkSize = 16 * 1024
	RoomCodeLength   = 6
)

// Event tags a signaling message exchanged over the relay.
type Event string

const (
	EventOffer        Event = "offer"
	EventAnswer       Event = "answer"
	EventICECandidate Event = "ice-candidate"
	EventPresenceJoin Event = "presence-join"
)

func (e Event) Valid() bool {
	switch e {
	case EventOffer, EventAnswer, EventICECandidate, EventPresenceJoin:
		return true
	default:
		return false
	}
}

func (e Event) String() string {
	if !e.Valid() {
		return "unknown"
	}
	return string(e)
}

// ControlType tags a text frame on the direct channel.
type ControlType string

const (
	ControlMetadata ControlType = "metadata"
	ControlComplete ControlType = "complete"
)
