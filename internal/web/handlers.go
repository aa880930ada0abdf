package web

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tztimeline/internal/app"
	"tztimeline/internal/capture"
	"tztimeline/internal/ics"
	appLog "tztimeline/internal/log"
	"tztimeline/internal/model"
	"tztimeline/internal/selection"
	"tztimeline/internal/timerange"
)

const maxImportBytes = 4 << 20

type zoneDTO struct {
	model.TimezoneDisplay
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

type zonesResponse struct {
	Zones     []zoneDTO          `json:"zones"`
	SelectAll selection.TriState `json:"select_all"`
}

// rangeDTO is the wire form of a range. Start/End use "2006-01-02T15:04";
// alternatively Date plus StartTime/EndTime ("15:04") may be sent.
type rangeDTO struct {
	ReferenceTimezone string `json:"reference_timezone"`
	Start             string `json:"start,omitempty"`
	End               string `json:"end,omitempty"`
	Date              string `json:"date,omitempty"`
	StartTime         string `json:"start_time,omitempty"`
	EndTime           string `json:"end_time,omitempty"`
}

type timelineResponse struct {
	Range      rangeDTO   `json:"range"`
	Degenerate bool       `json:"degenerate"`
	Bars       []barDTO   `json:"bars"`
	Domain     *domainDTO `json:"domain"`
}

type nowResponse struct {
	Now    time.Time  `json:"now"`
	Bars   []barDTO   `json:"bars"`
	Domain *domainDTO `json:"domain"`
}

type importResponse struct {
	UID      string           `json:"uid,omitempty"`
	Summary  string           `json:"summary,omitempty"`
	RRule    string           `json:"rrule,omitempty"`
	Timeline timelineResponse `json:"timeline"`
}

func filterFrom(r *http.Request) app.Filter {
	q := r.URL.Query()
	return app.Filter{BusinessOnly: parseBool(q.Get("business")), Query: q.Get("q")}
}

func toRangeDTO(r model.TimeRange) rangeDTO {
	return rangeDTO{
		ReferenceTimezone: r.ReferenceTimezoneID,
		Start:             timerange.FormatLocal(r.Start),
		End:               timerange.FormatLocal(r.End),
	}
}

// toRange parses d. An empty reference zone stays empty; App.SetRange
// keeps the current one.
func (d rangeDTO) toRange() (model.TimeRange, error) {
	out := model.TimeRange{ReferenceTimezoneID: strings.TrimSpace(d.ReferenceTimezone)}

	var err error
	if d.Date != "" {
		if out.Start, err = timerange.ParseWallClock(d.Date, d.StartTime); err != nil {
			return model.TimeRange{}, err
		}
		if out.End, err = timerange.ParseWallClock(d.Date, d.EndTime); err != nil {
			return model.TimeRange{}, err
		}
		return out, nil
	}
	if out.Start, err = timerange.ParseLocal(d.Start); err != nil {
		return model.TimeRange{}, err
	}
	if out.End, err = timerange.ParseLocal(d.End); err != nil {
		return model.TimeRange{}, err
	}
	return out, nil
}

func (s *Server) zonesFor(f app.Filter) zonesResponse {
	candidates := s.app.Candidates(f)
	selected := make(map[string]bool)
	for _, z := range s.app.Selected() {
		selected[z.ID] = true
	}

	resp := zonesResponse{Zones: make([]zoneDTO, 0, len(candidates))}
	for _, z := range candidates {
		resp.Zones = append(resp.Zones, zoneDTO{TimezoneDisplay: z, Label: z.Label(), Selected: selected[z.ID]})
	}
	resp.SelectAll = s.app.SelectAllState(f)
	return resp
}

func (s *Server) timeline() (timelineResponse, error) {
	tl, err := s.app.Timeline()
	if err != nil {
		return timelineResponse{}, err
	}
	return timelineResponse{
		Range:      toRangeDTO(tl.Range),
		Degenerate: tl.Degenerate,
		Bars:       bars(tl.Zones, tl.Projection, tl.Range.Start),
		Domain:     domain(tl.Projection),
	}, nil
}

// handleTimezones lists zones for the selector.
//
// GET /api/timezones?business=1&q=tok
func (s *Server) handleTimezones(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.zonesFor(filterFrom(r)))
}

func (s *Server) handleSelection(w http.ResponseWriter, _ *http.Request) {
	selected := s.app.Selected()
	out := make([]zoneDTO, 0, len(selected))
	for _, z := range selected {
		out = append(out, zoneDTO{TimezoneDisplay: z, Label: z.Label(), Selected: true})
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /api/selection/toggle {"id": "Asia/Tokyo"}
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "body must be {\"id\": \"<IANA zone>\"}")
		return
	}
	if err := s.app.Toggle(req.ID); err != nil {
		writeFailure(w, err, "toggle failed")
		return
	}
	s.handleSelection(w, r)
}

// POST /api/selection/all {"business": true, "q": "", "selected": true}
func (s *Server) handleSelectAll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Business bool   `json:"business"`
		Query    string `json:"q"`
		Selected bool   `json:"selected"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	f := app.Filter{BusinessOnly: req.Business, Query: req.Query}
	if req.Selected {
		s.app.SelectAll(f)
	} else {
		s.app.DeselectAll(f)
	}
	writeJSON(w, http.StatusOK, s.zonesFor(f))
}

func (s *Server) handleGetRange(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toRangeDTO(s.app.Range()))
}

// handleSetRange replaces the range. Unparseable input and unknown zones
// are 400 with the prior state kept; End <= Start is stored and flagged.
func (s *Server) handleSetRange(w http.ResponseWriter, r *http.Request) {
	var req rangeDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	next, err := req.toRange()
	if err != nil {
		writeFailure(w, err, "invalid range")
		return
	}
	if err := timerange.Validate(next); err != nil {
		appLog.Debug("degenerate range accepted", "err", err)
	}
	if err := s.app.SetRange(next); err != nil {
		writeFailure(w, err, "set range failed")
		return
	}
	s.handleTimeline(w, r)
}

func (s *Server) handleTimeline(w http.ResponseWriter, _ *http.Request) {
	resp, err := s.timeline()
	if err != nil {
		writeFailure(w, err, "failed to project timeline")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleNow projects the window around the current instant.
func (s *Server) handleNow(w http.ResponseWriter, _ *http.Request) {
	now, p, err := s.app.NowWindow()
	if err != nil {
		writeFailure(w, err, "failed to project now window")
		return
	}
	utc := now.UTC()
	writeJSON(w, http.StatusOK, nowResponse{
		Now:    utc,
		Bars:   bars(s.app.Selected(), p, utc),
		Domain: domain(p),
	})
}

// handleSeries projects each occurrence of a recurrence rule.
//
// GET /api/series?rrule=FREQ=WEEKLY;BYDAY=MO&count=8
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rule := q.Get("rrule")
	if rule == "" {
		writeError(w, http.StatusBadRequest, "rrule is required")
		return
	}
	entries, err := s.app.Series(rule, parseIntDefault(q.Get("count"), 10))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	zones := s.app.Selected()
	out := make([]timelineResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, timelineResponse{
			Range:      toRangeDTO(e.Range),
			Degenerate: e.Range.Degenerate(),
			Bars:       bars(zones, e.Projection, e.Range.Start),
			Domain:     domain(e.Projection),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleImport sets the range from a calendar event. The calendar is the
// request body (text/calendar), or fetched from ?url=.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if u := r.URL.Query().Get("url"); u != "" {
		if err := ics.HostAllowed(u, s.allowedHosts()); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, ics.ErrForbiddenHost) {
				status = http.StatusForbidden
			}
			writeError(w, status, err.Error())
			return
		}
		data, fromCache, err := s.fetcher.Fetch(r.Context(), u)
		if err != nil {
			if errors.Is(err, ics.ErrForbiddenHost) {
				writeError(w, http.StatusForbidden, err.Error())
				return
			}
			writeError(w, http.StatusBadGateway, "fetch failed: "+err.Error())
			return
		}
		appLog.Debug("import fetched", "from_cache", fromCache, "bytes", len(data))
		body = data
	} else {
		if ct := r.Header.Get("Content-Type"); ct != "" {
			if mt, _, _ := mime.ParseMediaType(ct); mt != "text/calendar" && mt != "text/plain" {
				writeError(w, http.StatusUnsupportedMediaType, "expected text/calendar")
				return
			}
		}
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "calendar too large")
			return
		}
		body = data
	}

	ref, err := ics.ParseReference(body, s.app.Range().ReferenceTimezoneID, s.app.Catalog())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.app.SetRange(ref.Range); err != nil {
		writeFailure(w, err, "set range failed")
		return
	}
	tl, err := s.timeline()
	if err != nil {
		writeFailure(w, err, "failed to project timeline")
		return
	}
	writeJSON(w, http.StatusOK, importResponse{UID: ref.UID, Summary: ref.Summary, RRule: ref.RRule, Timeline: tl})
}

// handleExport serves the projection as an iCalendar feed.
//
// GET /timeline.ics?rrule=FREQ=WEEKLY;COUNT=4
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	tl, err := s.app.Timeline()
	if err != nil {
		writeFailure(w, err, "failed to project timeline")
		return
	}
	body := ics.Export(tl.Range, tl.Zones, tl.Projection, ics.ExportOptions{RRule: r.URL.Query().Get("rrule")})

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="timeline.ics"`)
	_, _ = io.WriteString(w, body)
}

// handlePreview serves a PNG of /timeline, captured at most every
// previewCacheTTL.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	s.previewMu.RLock()
	pc := s.preview
	s.previewMu.RUnlock()
	if pc != nil && now.Sub(pc.updatedAt) < previewCacheTTL && !parseBool(r.URL.Query().Get("fresh")) {
		writePNG(w, pc.png)
		return
	}

	png, err := s.capturer.CapturePNG(r.Context(), s.captureOptions())
	if err != nil {
		appLog.Error("preview capture failed", err)
		writeError(w, http.StatusServiceUnavailable, "preview unavailable")
		return
	}

	s.previewMu.Lock()
	s.preview = &previewCache{png: png, updatedAt: time.Now()}
	s.previewMu.Unlock()

	writePNG(w, png)
}

func (s *Server) allowedHosts() []string {
	if s.cfg == nil {
		return nil
	}
	return s.cfg.Import.AllowedHosts
}

func (s *Server) captureOptions() capture.Options {
	opts := capture.Options{URL: s.SelfURL("/timeline")}
	if s.cfg != nil {
		opts.Width = s.cfg.Snapshot.Width
		opts.Height = s.cfg.Snapshot.Height
		opts.Timeout = time.Duration(s.cfg.Snapshot.TimeoutSec) * time.Second
		if s.basicAuthEnabled() {
			if u, err := url.Parse(opts.URL); err == nil {
				u.User = url.UserPassword(s.cfg.BasicAuth.Username, s.cfg.BasicAuth.Password)
				opts.URL = u.String()
			}
		}
	}
	return opts
}

// CaptureOptions exposes the capture settings used for /preview.png.
func (s *Server) CaptureOptions() capture.Options {
	return s.captureOptions()
}

func writePNG(w http.ResponseWriter, png []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}
