// Package events provides the pub/sub bus that carries engine activity to
// live consumers such as the WebSocket feed and the metrics collector.
package events

import "time"

// EventType identifies the category of event.
type EventType string

const (
	// Rule set changes
	EventRuleAdded   EventType = "rule.added"
	EventRuleRemoved EventType = "rule.removed"

	// One simulated packet was decided and logged
	EventPacketEvaluated EventType = "packet.evaluated"

	// Threat detector output
	EventThreatRaised  EventType = "threat.raised"
	EventThreatUpdated EventType = "threat.updated"
)

// Topic groups event types for WebSocket subscriptions.
func (t EventType) Topic() string {
	switch t {
	case EventRuleAdded, EventRuleRemoved:
		return "rules"
	case EventPacketEvaluated:
		return "logs"
	case EventThreatRaised, EventThreatUpdated:
		return "threats"
	}
	return "other"
}

// Event is the core message passed through the event bus.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // emitting component: "engine", "threat"
	Data      any       `json:"data"`
}

// RuleRemovedData is the payload for EventRuleRemoved.
type RuleRemovedData struct {
	ID int `json:"id"`
}

// PacketData is the payload for EventPacketEvaluated.
type PacketData struct {
	Timestamp string `json:"timestamp"`
	SrcIP     string `json:"src_ip"`
	DstPort   int    `json:"dst_port"`
	Protocol  string `json:"protocol"`
	Action    string `json:"action"`
	RuleID    int    `json:"rule_id,omitempty"`
}
