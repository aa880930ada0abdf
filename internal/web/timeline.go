package web

import (
	"bytes"
	"embed"
	"html/template"
	"math"
	"net/http"
	"time"

	appLog "tztimeline/internal/log"
	"tztimeline/internal/model"
	"tztimeline/internal/projector"
	"tztimeline/internal/timerange"
)

//go:embed templates/timeline.html
var templateFS embed.FS

var timelineTemplate = template.Must(template.ParseFS(templateFS, "templates/timeline.html"))

const maxTicks = 12

// barDTO is one zone's bar, positioned against the shared domain.
type barDTO struct {
	TimezoneID    string    `json:"timezone_id"`
	Label         string    `json:"label"`
	LocalStart    string    `json:"local_start"`
	LocalEnd      string    `json:"local_end"`
	UTCStart      time.Time `json:"utc_start"`
	UTCEnd        time.Time `json:"utc_end"`
	OffsetMinutes int       `json:"offset_minutes"`
	StartLabel    string    `json:"start_label"`
	EndLabel      string    `json:"end_label"`
	DayShift      int       `json:"day_shift"`
	EndDayShift   int       `json:"end_day_shift"`
	LeftPct       float64   `json:"left_pct"`
	WidthPct      float64   `json:"width_pct"`
}

type domainDTO struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

type tick struct {
	LeftPct float64
	Label   string
}

// bars lays out p against its domain. Day shifts are measured from ref, a
// wall-clock value.
func bars(zones []model.TimezoneDisplay, p model.Projection, ref time.Time) []barDTO {
	byID := make(map[string]model.TimezoneDisplay, len(zones))
	for _, z := range zones {
		byID[z.ID] = z
	}

	out := make([]barDTO, 0, len(p.PerZone))
	for _, pi := range p.PerZone {
		label := pi.TimezoneID
		if z, ok := byID[pi.TimezoneID]; ok {
			label = z.Label()
		}
		b := barDTO{
			TimezoneID:    pi.TimezoneID,
			Label:         label,
			LocalStart:    timerange.FormatLocal(pi.LocalStart),
			LocalEnd:      timerange.FormatLocal(pi.LocalEnd),
			UTCStart:      pi.UTCStart,
			UTCEnd:        pi.UTCEnd,
			OffsetMinutes: pi.OffsetMinutes,
			StartLabel:    projector.FormatClock(pi.LocalStart),
			EndLabel:      projector.FormatClock(pi.LocalEnd),
			DayShift:      projector.DayShift(ref, pi.LocalStart),
			EndDayShift:   projector.DayShift(ref, pi.LocalEnd),
		}
		if p.Domain != nil {
			b.LeftPct = pct(pi.LocalStart.Sub(p.Domain.Min), p.Domain.Width())
			b.WidthPct = pct(pi.LocalEnd.Sub(pi.LocalStart), p.Domain.Width())
		}
		out = append(out, b)
	}
	return out
}

func domain(p model.Projection) *domainDTO {
	if p.Domain == nil {
		return nil
	}
	return &domainDTO{
		Min: timerange.FormatLocal(p.Domain.Min),
		Max: timerange.FormatLocal(p.Domain.Max),
	}
}

// ticks returns hour marks across d, at most maxTicks of them.
func ticks(d *model.PlotDomain) []tick {
	if d == nil || d.Width() <= 0 {
		return nil
	}
	hours := d.Width().Hours()
	step := time.Duration(math.Max(1, math.Ceil(hours/maxTicks))) * time.Hour

	t := d.Min.Truncate(time.Hour)
	if t.Before(d.Min) {
		t = t.Add(time.Hour)
	}
	var out []tick
	for ; !t.After(d.Max); t = t.Add(step) {
		out = append(out, tick{
			LeftPct: pct(t.Sub(d.Min), d.Width()),
			Label:   projector.FormatClock(t),
		})
	}
	return out
}

func pct(part, whole time.Duration) float64 {
	if whole <= 0 {
		return 0
	}
	v := float64(part) / float64(whole) * 100
	return math.Round(v*100) / 100
}

type pageData struct {
	Reference  string
	Start      string
	End        string
	Degenerate bool
	Bars       []barDTO
	Ticks      []tick
}

// handleTimelinePage renders the timeline as HTML. The root element carries
// data-ready="true" for the PNG capture.
func (s *Server) handleTimelinePage(w http.ResponseWriter, _ *http.Request) {
	tl, err := s.app.Timeline()
	if err != nil {
		appLog.Error("timeline page: projection failed", err)
		http.Error(w, "failed to project timeline", http.StatusInternalServerError)
		return
	}

	data := pageData{
		Reference:  tl.Range.ReferenceTimezoneID,
		Start:      timerange.FormatLocal(tl.Range.Start),
		End:        timerange.FormatLocal(tl.Range.End),
		Degenerate: tl.Degenerate,
		Bars:       bars(tl.Zones, tl.Projection, tl.Range.Start),
		Ticks:      ticks(tl.Projection.Domain),
	}

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, data); err != nil {
		appLog.Error("timeline page: template failed", err)
		http.Error(w, "failed to render timeline", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
