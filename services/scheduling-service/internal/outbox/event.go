package outbox

import (
	"encoding/json"
	"fmt"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (production-style: event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	TenantID      string
	Payload       []byte
}

const (
	AggregateBooking      = "booking"
	AggregateBlackout     = "blackout"
	AggregateProfessional = "professional"

	BookingReserved      = "scheduling.booking.reserved.v1"
	BookingConfirmed     = "scheduling.booking.confirmed.v1"
	BookingCompleted     = "scheduling.booking.completed.v1"
	BookingCancelled     = "scheduling.booking.cancelled.v1"
	BlackoutCreated      = "scheduling.blackout.created.v1"
	BlackoutDeleted      = "scheduling.blackout.deleted.v1"
	WorkingHoursReplaced = "scheduling.working_hours.replaced.v1"
)

// NewEvent marshals payload to JSON and wraps it in an Event.
func NewEvent(aggregateType, aggregateID, eventType, tenantID string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		TenantID:      tenantID,
		Payload:       raw,
	}, nil
}
