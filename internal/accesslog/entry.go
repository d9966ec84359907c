package accesslog

import (
	"encoding/json"
	"fmt"
	"time"

	"grimm.is/sentinel/internal/firewall"
)

// TimestampLayout is the wire format of Entry.Timestamp, in server local time.
const TimestampLayout = "2006-01-02 15:04:05"

// Entry records one evaluated packet and its outcome. Entries carry no rule
// id, so deleting a rule never invalidates history.
type Entry struct {
	Timestamp     time.Time
	SourceAddress string
	DestPort      int
	Protocol      firewall.Protocol
	Action        firewall.Action
}

// FromDecision builds an unstamped entry for an evaluator decision.
func FromDecision(d firewall.Decision) Entry {
	return Entry{
		SourceAddress: d.Packet.SourceAddress,
		DestPort:      d.Packet.DestPort,
		Protocol:      d.Packet.Protocol,
		Action:        d.Action,
	}
}

func (e Entry) String() string {
	return fmt.Sprintf("%s | %s | %d | %s | %s",
		e.Timestamp.Format(TimestampLayout), e.SourceAddress, e.DestPort, e.Protocol, e.Action)
}

type entryJSON struct {
	Timestamp     string            `json:"timestamp"`
	SourceAddress string            `json:"src_ip"`
	DestPort      int               `json:"dst_port"`
	Protocol      firewall.Protocol `json:"protocol"`
	Action        firewall.Action   `json:"action"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{
		Timestamp:     e.Timestamp.Local().Format(TimestampLayout),
		SourceAddress: e.SourceAddress,
		DestPort:      e.DestPort,
		Protocol:      e.Protocol,
		Action:        e.Action,
	})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := time.ParseInLocation(TimestampLayout, raw.Timestamp, time.Local)
	if err != nil {
		return fmt.Errorf("log entry timestamp: %w", err)
	}
	*e = Entry{
		Timestamp:     ts,
		SourceAddress: raw.SourceAddress,
		DestPort:      raw.DestPort,
		Protocol:      raw.Protocol,
		Action:        raw.Action,
	}
	return nil
}

// MarshalYAML renders the entry with the same field names as JSON.
func (e Entry) MarshalYAML() (interface{}, error) {
	return map[string]interface{}{
		"timestamp": e.Timestamp.Local().Format(TimestampLayout),
		"src_ip":    e.SourceAddress,
		"dst_port":  e.DestPort,
		"protocol":  string(e.Protocol),
		"action":    string(e.Action),
	}, nil
}
