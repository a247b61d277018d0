package mediastream

// EventType names a stream event.
type EventType string

const (
	EventAddTrack    EventType = "addtrack"
	EventRemoveTrack EventType = "removetrack"
	EventActive      EventType = "active"
	EventInactive    EventType = "inactive"
)

// Event is delivered to stream listeners. Track is set for addtrack and
// removetrack only.
type Event struct {
	Type  EventType
	Track *Track
}

func (e Event) Bubbles() bool    { return false }
func (e Event) Cancelable() bool { return false }

// EventListener handles a delivered event.
type EventListener func(Event)

type listener struct {
	id uint64
	fn EventListener
}

// Observer is told after the application changed a stream's track set.
// Platform-initiated changes are reported as events instead.
type Observer interface {
	DidAddOrRemoveTrack(s *Stream)
}

// Origin tags where a track set mutation came from.
type Origin int

const (
	OriginApplication Origin = iota
	OriginPlatform
)

func (o Origin) String() string {
	switch o {
	case OriginApplication:
		return "application"
	case OriginPlatform:
		return "platform"
	default:
		return "unknown"
	}
}
