// Package models defines the dialogue domain and flow enumerations to avoid
// circular imports between the router, handlers, and the session store.
package models

// DomainTag identifies one of the four conversational responsibility areas.
type DomainTag string

const (
	// DomainFAQ answers general questions about the clinic.
	DomainFAQ DomainTag = "faq"
	// DomainAvailability answers read-only schedule inquiries.
	DomainAvailability DomainTag = "availability"
	// DomainPatientRecords manages patient rows and appointment listings.
	DomainPatientRecords DomainTag = "patient_records"
	// DomainBooking performs booking, cancellation and reschedule operations.
	DomainBooking DomainTag = "booking"
)

// IsValidDomainTag checks if the given domain tag is supported.
func IsValidDomainTag(d DomainTag) bool {
	switch d {
	case DomainFAQ, DomainAvailability, DomainPatientRecords, DomainBooking:
		return true
	default:
		return false
	}
}

// PendingFlow marks a session's open multi-step flow, if any.
type PendingFlow string

const (
	FlowNone       PendingFlow = "NONE"
	FlowBooking    PendingFlow = "BOOKING"
	FlowCancel     PendingFlow = "CANCEL"
	FlowReschedule PendingFlow = "RESCHEDULE"
)

// FlowDomain returns the domain that owns a pending flow. All multi-step
// flows belong to the booking domain.
func (f PendingFlow) FlowDomain() DomainTag {
	return DomainBooking
}

// BookingStep is the slot-filling position inside an open flow.
type BookingStep string

const (
	StepNone        BookingStep = ""
	StepAwaitDoctor BookingStep = "AWAIT_DOCTOR"
	StepAwaitDate   BookingStep = "AWAIT_DATE"
	StepAwaitTime   BookingStep = "AWAIT_TIME"
	// Reschedule collects the replacement slot after the original one.
	StepAwaitNewDate BookingStep = "AWAIT_NEW_DATE"
	StepAwaitNewTime BookingStep = "AWAIT_NEW_TIME"
)
