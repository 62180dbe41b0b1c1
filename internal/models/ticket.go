package models

import "time"

// Ticket is a read model of a customer's queue entry. The authoritative
// record lives in the backing ticket store; this engine only caches it and
// routes it through workflow transitions.
type Ticket struct {
	DocNo        string    `json:"docNo"`
	TicketNo     string    `json:"ticketNo"`
	ProfileID    string    `json:"profileId"`
	ServiceGroup string    `json:"serviceGroup"`
	Status       string    `json:"status"`
	Channel      string    `json:"channel,omitempty"`
	Priority     string    `json:"priority,omitempty"`
	CheckInTime  time.Time `json:"checkInTime"`
	RefID        string    `json:"refId,omitempty"`
	RefType      string    `json:"refType,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}
