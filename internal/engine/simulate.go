package engine

import (
	"grimm.is/sentinel/internal/accesslog"
	"grimm.is/sentinel/internal/events"
	"grimm.is/sentinel/internal/firewall"
	"grimm.is/sentinel/internal/threat"
)

// Result is the outcome of one simulated packet.
type Result struct {
	Action firewall.Action
	// RuleID is the deciding rule, 0 when the default action applied.
	RuleID int
	Entry  accesslog.Entry
	// Threats raised or updated by this packet.
	Threats []threat.Threat
}

// Simulate evaluates p, records the decision and feeds it to the threat
// detector. A malformed packet is rejected before anything is recorded.
func (e *Engine) Simulate(p firewall.Packet) (Result, error) {
	e.pipeline.RLock()
	decision, err := e.evaluator.Evaluate(p)
	if err != nil {
		e.pipeline.RUnlock()
		if !firewall.IsClientError(err) {
			e.metrics.EvaluationErrors.Inc()
			e.logger.Error("evaluation failed", "error", err)
		}
		return Result{}, err
	}
	entry := e.log.Append(accesslog.FromDecision(decision))
	threats := e.detector.Observe(entry)
	e.pipeline.RUnlock()

	res := Result{Action: decision.Action, Entry: entry, Threats: threats}
	if decision.Matched() {
		res.RuleID = decision.Rule.ID
	}
	e.publish(res)
	return res, nil
}

func (e *Engine) publish(res Result) {
	e.metrics.RecordEvaluation(string(res.Action), string(res.Entry.Protocol), res.RuleID)
	e.hub.Publish(events.Event{
		Type:      events.EventPacketEvaluated,
		Timestamp: res.Entry.Timestamp,
		Source:    "engine",
		Data: events.PacketData{
			Timestamp: res.Entry.Timestamp.Format(accesslog.TimestampLayout),
			SrcIP:     res.Entry.SourceAddress,
			DstPort:   res.Entry.DestPort,
			Protocol:  string(res.Entry.Protocol),
			Action:    string(res.Action),
			RuleID:    res.RuleID,
		},
	})

	for _, t := range res.Threats {
		typ := events.EventThreatUpdated
		if t.IsNew() {
			typ = events.EventThreatRaised
			e.metrics.RecordThreatRaised(string(t.Type))
		}
		e.hub.Publish(events.Event{Type: typ, Timestamp: t.LastSeen, Source: "threat", Data: t})
	}
}
