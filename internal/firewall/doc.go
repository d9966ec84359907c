// Package firewall implements the Sentinel rule engine.
//
// # Overview
//
// Rules are immutable values kept in an ordered [RuleStore]. Order is
// priority: the earliest-added rule that matches a packet decides it.
// When nothing matches, the [Evaluator] applies its configured default
// action, which is DENY unless an operator explicitly changes it.
//
// # Architecture
//
//	RuleDraft -> RuleStore.Add (validate, assign id) -> ordered []Rule
//	Packet -> Evaluator.Evaluate(RuleStore snapshot) -> Decision
//
// # Address specifiers
//
// A rule's source is one of:
//   - "any": matches every syntactically valid address
//   - a literal address ("192.168.1.100"): numeric equality
//   - a CIDR block ("10.0.0.0/8"): masked prefix comparison
//
// Specifiers are validated when a rule is created. A malformed candidate
// address on a packet is an [ErrInvalidAddress] error, never an implicit
// allow or deny.
//
// # Example
//
//	store := firewall.NewRuleStore()
//	store.Add(firewall.RuleDraft{Action: "DENY", SrcIP: "10.0.0.0/24", DstPort: 22, Protocol: "TCP"})
//	eval := firewall.NewEvaluator(store, firewall.ActionDeny)
//	decision, err := eval.Evaluate(firewall.Packet{SourceAddress: "10.0.0.5", DestPort: 22, Protocol: "tcp"})
package firewall
