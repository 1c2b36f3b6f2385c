// Package dss implements the ASTM F3548-21 strategic coordination client:
// operational intent references at the DSS, peer USS notifications, cached
// access tokens and the Redis snapshot of accepted intents.
package dss

import (
	"github.com/openutm/flightdeck/pkg/geo"
)

// ASTM operational intent states as carried on the wire.
const (
	IntentStateAccepted      = "Accepted"
	IntentStateActivated     = "Activated"
	IntentStateNonconforming = "Nonconforming"
	IntentStateContingent    = "Contingent"
)

// OperationalIntentReference is the DSS record of an operational intent.
type OperationalIntentReference struct {
	ID              string    `json:"id"`
	Manager         string    `json:"manager,omitempty"`
	USSAvailability string    `json:"uss_availability,omitempty"`
	Version         int       `json:"version,omitempty"`
	State           string    `json:"state"`
	OVN             string    `json:"ovn,omitempty"`
	TimeStart       *geo.Time `json:"time_start,omitempty"`
	TimeEnd         *geo.Time `json:"time_end,omitempty"`
	USSBaseURL      string    `json:"uss_base_url"`
	SubscriptionID  string    `json:"subscription_id,omitempty"`
}

// OperationalIntentDetails is the USS-held detail of an intent: volumes,
// off-nominal volumes and priority.
type OperationalIntentDetails struct {
	Volumes           []geo.Volume4D `json:"volumes"`
	OffNominalVolumes []geo.Volume4D `json:"off_nominal_volumes"`
	Priority          int            `json:"priority"`
}

// OperationalIntent pairs the DSS reference with the USS details.
type OperationalIntent struct {
	Reference OperationalIntentReference `json:"reference"`
	Details   OperationalIntentDetails   `json:"details"`
}

// NewSubscription asks the DSS to create an implicit subscription covering
// the submitted extents.
type NewSubscription struct {
	USSBaseURL           string `json:"uss_base_url"`
	NotifyForConstraints bool   `json:"notify_for_constraints"`
}

// PutOperationalIntentReferenceParameters is the body of a create or update
// at the DSS. Key carries the OVNs of every intent the new extents overlap.
type PutOperationalIntentReferenceParameters struct {
	Extents         []geo.Volume4D   `json:"extents"`
	Key             []string         `json:"key"`
	State           string           `json:"state"`
	USSBaseURL      string           `json:"uss_base_url"`
	NewSubscription *NewSubscription `json:"new_subscription,omitempty"`
}

// SubscriptionState identifies one subscription of a peer to notify.
type SubscriptionState struct {
	SubscriptionID    string `json:"subscription_id"`
	NotificationIndex int    `json:"notification_index"`
}

// SubscriberToNotify is a peer USS the DSS says must be told about a change.
type SubscriberToNotify struct {
	USSBaseURL    string              `json:"uss_base_url"`
	Subscriptions []SubscriptionState `json:"subscriptions"`
}

// ChangeOperationalIntentReferenceResponse is returned by the DSS on create,
// update and delete.
type ChangeOperationalIntentReferenceResponse struct {
	Subscribers                []SubscriberToNotify       `json:"subscribers"`
	OperationalIntentReference OperationalIntentReference `json:"operational_intent_reference"`
}

// GetOperationalIntentReferenceResponse is returned by the DSS on a read.
type GetOperationalIntentReferenceResponse struct {
	OperationalIntentReference OperationalIntentReference `json:"operational_intent_reference"`
}

// QueryOperationalIntentReferenceParameters asks the DSS for all references
// intersecting an area of interest.
type QueryOperationalIntentReferenceParameters struct {
	AreaOfInterest geo.Volume4D `json:"area_of_interest"`
}

// QueryOperationalIntentReferenceResponse is the result of an area query.
type QueryOperationalIntentReferenceResponse struct {
	OperationalIntentReferences []OperationalIntentReference `json:"operational_intent_references"`
}

// PutOperationalIntentDetailsParameters is the notification pushed to peer
// USSs after a change. A nil OperationalIntent means the intent no longer
// exists.
type PutOperationalIntentDetailsParameters struct {
	OperationalIntentID string              `json:"operational_intent_id"`
	OperationalIntent   *OperationalIntent  `json:"operational_intent,omitempty"`
	Subscriptions       []SubscriptionState `json:"subscriptions"`
}

// AirspaceConflictResponse is the DSS 409 body listing the intents whose
// OVNs were missing from the submitted key.
type AirspaceConflictResponse struct {
	Message                   string                       `json:"message,omitempty"`
	MissingOperationalIntents []OperationalIntentReference `json:"missing_operational_intents,omitempty"`
}
