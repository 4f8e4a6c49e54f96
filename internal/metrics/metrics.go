// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Label values shared by callers and recorders.
const (
	MembershipMember    = "member"
	MembershipNotMember = "not_member"
	MembershipError     = "error"

	FlowCompleted = "completed"
	FlowFailed    = "failed"
	FlowAborted   = "aborted"

	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// Recorder captures metric events for the bot.
type Recorder interface {
	// Intake
	IncUpdate(kind string)
	IncUpdateDropped()

	// Membership checks, one per channel lookup.
	IncMembershipCheck(result string)

	// Airtime flow
	IncFlow(outcome string)
	ObserveFlowDuration(duration time.Duration)

	// Broadcast, one per recipient.
	IncBroadcastDelivery(status string)
}
