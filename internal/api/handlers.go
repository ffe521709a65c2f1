package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kpicalc/internal/input"
	"kpicalc/internal/metrics"
	"kpicalc/internal/model"
	"kpicalc/internal/store"
	"kpicalc/internal/timefmt"
)

// EntitiesHandler handles POST/GET /v1/entities
func (s *Server) EntitiesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req entityPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.TenantID == "" {
			req.TenantID = s.getPrincipal(r).Tenant
		}
		start, stops, err := validateEntityPayload(&req)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid entity", err.Error(), r.URL.Path)
			return
		}
		e, err := s.Store.CreateEntity(r.Context(), req.TenantID, req.EntityType, start, stops)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create entity failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, toEntityOut(e))
	case http.MethodGet:
		tenant := s.getPrincipal(r).Tenant
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListEntities(r.Context(), tenant, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List entities failed", err.Error(), r.URL.Path)
			return
		}
		out := make([]entityOut, 0, len(items))
		for _, e := range items {
			out = append(out, toEntityOut(e))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": out, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// EntityByIDHandler handles GET /v1/entities/{id} and the subresources
// /stops, /finalize, /kpis, /kpis/stream.
func (s *Server) EntityByIDHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	rest := strings.TrimPrefix(path, "/v1/entities/")
	if rest == path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
		return
	}
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}
	tenant := s.getPrincipal(r).Tenant

	switch {
	case sub == "" && r.Method == http.MethodGet:
		e, err := s.Store.GetEntity(r.Context(), tenant, id)
		if err != nil {
			writeStoreProblem(w, err, path)
			return
		}
		writeJSON(w, http.StatusOK, toEntityOut(e))
	case sub == "stops" && r.Method == http.MethodPost:
		s.addStops(w, r, tenant, id)
	case sub == "finalize" && r.Method == http.MethodPost:
		s.finalizeEntity(w, r, tenant, id)
	case sub == "kpis" && r.Method == http.MethodGet:
		s.entityKPIs(w, r, tenant, id)
	case sub == "kpis/stream" && r.Method == http.MethodGet:
		s.streamEntityEvents(w, r, tenant, id)
	case sub == "":
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", path)
	}
}

func (s *Server) addStops(w http.ResponseWriter, r *http.Request, tenant, id string) {
	var req struct {
		Stops []stopPayload `json:"stops"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if len(req.Stops) == 0 {
		writeProblem(w, http.StatusBadRequest, "Missing stops", "at least one stop required", r.URL.Path)
		return
	}
	stops, err := decodeStops(req.Stops)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid stops", err.Error(), r.URL.Path)
		return
	}
	e, err := s.Store.AddStops(r.Context(), tenant, id, stops)
	if err != nil {
		writeStoreProblem(w, err, r.URL.Path)
		return
	}
	s.Broker.Publish(id, KPIEvent{Type: "entity.stops.added", Data: map[string]any{"entityId": id, "stops": len(stops)}})
	s.Pub.Emit(r.Context(), tenant, "entity.stops.added", map[string]any{"entityId": id, "entityType": e.EntityType, "stops": req.Stops})
	writeJSON(w, http.StatusOK, toEntityOut(e))
}

func (s *Server) finalizeEntity(w http.ResponseWriter, r *http.Request, tenant, id string) {
	var req struct {
		End string `json:"end"`
		Now string `json:"now,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	end, err := parseTS("end", req.End)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid end", err.Error(), r.URL.Path)
		return
	}
	now, err := s.nowParam(req.Now)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid now", err.Error(), r.URL.Path)
		return
	}

	e, err := s.Store.FinalizeEntity(r.Context(), tenant, id, end)
	if err != nil {
		writeStoreProblem(w, err, r.URL.Path)
		return
	}

	res, err := s.runCalc(e.Input(now))
	if err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Calculation failed", err.Error(), r.URL.Path)
		return
	}
	summary := formattedSummary(res)
	s.Broker.Publish(id, KPIEvent{Type: "entity.finalized", Data: map[string]any{"entityId": id, "formatted": summary}})
	s.Pub.Emit(r.Context(), tenant, "entity.finalized", map[string]any{
		"entityId":   id,
		"entityType": e.EntityType,
		"end":        timefmt.Format(end),
		"kpis":       res,
		"formatted":  summary,
	})
	writeJSON(w, http.StatusOK, map[string]any{"entity": toEntityOut(e), "result": res, "formatted": summary})
}

func (s *Server) entityKPIs(w http.ResponseWriter, r *http.Request, tenant, id string) {
	if !s.Limits.Allow(tenant) {
		writeProblem(w, http.StatusTooManyRequests, "Rate limited", "calculation rate limit exceeded", r.URL.Path)
		return
	}
	now, err := s.nowParam(r.URL.Query().Get("now"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid now", err.Error(), r.URL.Path)
		return
	}
	e, err := s.Store.GetEntity(r.Context(), tenant, id)
	if err != nil {
		writeStoreProblem(w, err, r.URL.Path)
		return
	}
	res, err := s.runCalc(e.Input(now))
	if err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Calculation failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entityId":  id,
		"now":       timefmt.Format(now),
		"result":    res,
		"formatted": formattedSummary(res),
	})
}

// CalculateHandler handles POST /v1/calculate: a stateless one-shot
// calculation from a full entity input document (the CLI file format).
func (s *Server) CalculateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenant := s.getPrincipal(r).Tenant
	if !s.Limits.Allow(tenant) {
		writeProblem(w, http.StatusTooManyRequests, "Rate limited", "calculation rate limit exceeded", r.URL.Path)
		return
	}
	in, err := input.Decode(r.Body)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid entity input", err.Error(), r.URL.Path)
		return
	}
	res, err := s.runCalc(in)
	if err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Calculation failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res, "formatted": formattedSummary(res)})
}

// runCalc wraps the calculator with instrumentation.
func (s *Server) runCalc(in model.EntityInput) (model.CalcResult, error) {
	start := time.Now()
	res, err := s.Calc.Calculate(in)
	metrics.CalculationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return res, err
	}
	metrics.Calculations.WithLabelValues(strconv.FormatBool(in.IsFinalized)).Inc()
	countEvidence(res.Explain)
	return res, nil
}

func countEvidence(ex model.Explain) {
	reports := []struct {
		family, window string
		rep            model.WindowReport
	}{
		{"sla", "real", ex.Stops.SLAReal},
		{"ola", "real", ex.Stops.OLAReal},
		{"sla", "to_date", ex.Stops.SLAToDate},
		{"ola", "to_date", ex.Stops.OLAToDate},
	}
	for _, fw := range reports {
		for _, ev := range fw.rep.Evidence {
			metrics.StopEvidence.WithLabelValues(fw.family, fw.window, string(ev.Action)).Inc()
		}
	}
}

// formattedSummary renders the headline numbers as "DD d HH h MM m".
func formattedSummary(res model.CalcResult) map[string]string {
	out := map[string]string{"ttd": timefmt.DHM(res.TTDSeconds)}
	if res.TTMSeconds != nil {
		out["ttm"] = timefmt.DHM(*res.TTMSeconds)
	}
	if res.SLARealSeconds != nil {
		out["sla_real"] = timefmt.DHM(*res.SLARealSeconds)
	}
	if res.SLAToDateSeconds != nil {
		out["sla_to_date"] = timefmt.DHM(*res.SLAToDateSeconds)
	}
	if res.OLARealSeconds != nil {
		out["ola_real"] = timefmt.DHM(*res.OLARealSeconds)
	}
	if res.OLAToDateSeconds != nil {
		out["ola_to_date"] = timefmt.DHM(*res.OLAToDateSeconds)
	}
	return out
}

// nowParam parses an optional client-supplied evaluation time; absent, the
// server clock is used, truncated to the minute the wire format carries.
func (s *Server) nowParam(v string) (time.Time, error) {
	if v == "" {
		return time.Now().Truncate(time.Minute), nil
	}
	t, err := timefmt.Parse(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected %q", timefmt.Layout)
	}
	return t, nil
}

func writeStoreProblem(w http.ResponseWriter, err error, instance string) {
	switch {
	case err == store.ErrNotFound:
		writeProblem(w, http.StatusNotFound, "Not Found", "", instance)
	case err == store.ErrFinalized:
		writeProblem(w, http.StatusConflict, "Already finalized", "", instance)
	default:
		writeProblem(w, http.StatusInternalServerError, "Store error", err.Error(), instance)
	}
}

// streamEntityEvents serves the SSE stream of KPI events for one entity.
func (s *Server) streamEntityEvents(w http.ResponseWriter, r *http.Request, tenant, id string) {
	if _, err := s.Store.GetEntity(r.Context(), tenant, id); err != nil {
		writeStoreProblem(w, err, r.URL.Path)
		return
	}
	fl, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fl.Flush()

	ch := s.Broker.Subscribe(id)
	closed := false
	defer func() {
		if !closed {
			s.Broker.Unsubscribe(id, ch)
		}
	}()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				closed = true
				return
			}
			data, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
			fl.Flush()
		}
	}
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	switch r.Method {
	case http.MethodPost:
		if !p.IsAdmin() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
			return
		}
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.TenantID == "" {
			req.TenantID = p.Tenant
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events required", r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	status := r.URL.Query().Get("status")
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, status, cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}
