package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"grimm.is/sentinel/internal/audit"
	"grimm.is/sentinel/internal/brand"
	"grimm.is/sentinel/internal/firewall"
)

// RuleRequest is the body of POST /rules.
type RuleRequest struct {
	Action   string `json:"action"`
	SrcIP    string `json:"src_ip"`
	DstPort  *int   `json:"dst_port"`
	Protocol string `json:"protocol"`
}

// Draft converts the request, rejecting a missing port.
func (req RuleRequest) Draft() (firewall.RuleDraft, error) {
	if req.DstPort == nil {
		return firewall.RuleDraft{}, &firewall.ValidationError{Field: "dst_port", Reason: "required"}
	}
	return firewall.RuleDraft{
		Action:   req.Action,
		SrcIP:    req.SrcIP,
		DstPort:  *req.DstPort,
		Protocol: req.Protocol,
	}, nil
}

// SimulateRequest is the body of POST /simulate.
type SimulateRequest struct {
	SrcIP    string `json:"src_ip"`
	DstPort  *int   `json:"dst_port"`
	Protocol string `json:"protocol"`
}

// Packet converts the request, rejecting a missing port.
func (req SimulateRequest) Packet() (firewall.Packet, error) {
	if req.DstPort == nil {
		return firewall.Packet{}, &firewall.ValidationError{Field: "dst_port", Reason: "required"}
	}
	return firewall.Packet{
		SourceAddress: req.SrcIP,
		DestPort:      *req.DstPort,
		Protocol:      firewall.Protocol(req.Protocol),
	}, nil
}

// SimulateResponse is the decision for one packet. RuleID is omitted when
// the default action applied.
type SimulateResponse struct {
	Action firewall.Action `json:"action"`
	RuleID *int            `json:"rule_id,omitempty"`
}

// DeleteResponse is returned by DELETE /rules/{id}.
type DeleteResponse struct {
	Deleted bool   `json:"deleted"`
	Message string `json:"message"`
}

// StatusResponse is returned by the health endpoints.
type StatusResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.engine.Rules())
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rule, found := s.engine.Rule(id)
	if !found {
		WriteError(w, http.StatusNotFound, firewall.ErrNotFound.Error(), "id "+strconv.Itoa(id))
		return
	}
	WriteJSON(w, http.StatusOK, rule)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid rule", err.Error())
		return
	}
	draft, err := req.Draft()
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid rule", err.Error())
		return
	}

	rule, err := s.engine.AddRule(r.Context(), draft, actorFrom(r))
	if err != nil {
		s.writeEngineError(w, r, "invalid rule", err)
		return
	}
	w.Header().Set("Location", "/rules/"+strconv.Itoa(rule.ID))
	WriteJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	deleted := s.engine.RemoveRule(r.Context(), id, actorFrom(r))
	WriteJSON(w, http.StatusOK, DeleteResponse{Deleted: deleted, Message: "Rule deleted"})
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.PathValue("id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid rule id", "id must be an integer, got "+strconv.Quote(raw))
		return 0, false
	}
	return id, true
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid packet", err.Error())
		return
	}
	packet, err := req.Packet()
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid packet", err.Error())
		return
	}

	res, err := s.engine.Simulate(packet)
	if err != nil {
		s.writeEngineError(w, r, "invalid packet", err)
		return
	}

	resp := SimulateResponse{Action: res.Action}
	if res.RuleID != 0 {
		id := res.RuleID
		resp.RuleID = &id
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", *s.config.API.LogsLimit)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, s.engine.Logs(limit))
}

func (s *Server) handleThreats(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.engine.Threats())
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "yaml" {
		WriteError(w, http.StatusBadRequest, "invalid query", "format must be json or yaml")
		return
	}

	report := s.engine.Report()
	var (
		body        []byte
		err         error
		contentType string
	)
	switch format {
	case "yaml":
		body, err = report.YAML()
		contentType = "application/yaml"
	default:
		body, err = report.JSON()
		contentType = "application/json"
	}
	if err != nil {
		s.writeEngineError(w, r, "report failed", err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.Filename(format)+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}
	filter := audit.Filter{Action: r.URL.Query().Get("action"), Limit: limit}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid query", "since must be RFC3339")
			return
		}
		filter.Since = t
	}

	evts, err := s.engine.AuditEvents(r.Context(), filter)
	if err != nil {
		s.writeEngineError(w, r, "audit query failed", err)
		return
	}
	WriteJSON(w, http.StatusOK, evts)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, StatusResponse{Status: "ok", Version: brand.Version})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.engine.Ready(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		WriteJSON(w, http.StatusServiceUnavailable, StatusResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	WriteJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(openAPISpec)
}
