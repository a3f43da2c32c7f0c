package livequery

// EventType is the type of a stream event.
type EventType string

// EventType constants
const (
	EventTypeInitial EventType = "initial"
	EventTypeChange  EventType = "change"
)

// Event is a unit delivered by a Stream.
//
// Initial events carry the snapshot of Query in Rows. Change events carry the
// old and/or new row image accepted by the query's filter. A Change with Old set
// and New nil means the row left the result set; the reverse means it entered.
type Event struct {
	Type  EventType
	Query Query
	Rows  []Row
	Old   Row
	New   Row
}
