package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tztimeline/internal/catalog"
	"tztimeline/internal/clock"
	"tztimeline/internal/model"
	"tztimeline/internal/projector"
)

func calendar(events ...string) []byte {
	s := "BEGIN:VCALENDAR\nVERSION:2.0\nPRODID:-//test//EN\n" + strings.Join(events, "") + "END:VCALENDAR\n"
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func vevent(lines ...string) string {
	return "BEGIN:VEVENT\nDTSTAMP:20240701T000000Z\n" + strings.Join(lines, "\n") + "\nEND:VEVENT\n"
}

func newCatalog() *catalog.Catalog {
	return catalog.New(catalog.Options{Clock: clock.Fixed(time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC))})
}

func wall(d, hh int) time.Time {
	return time.Date(2024, 7, d, hh, 0, 0, 0, time.UTC)
}

func TestParseReference(t *testing.T) {
	cat := newCatalog()

	tests := []struct {
		name  string
		body  []byte
		want  model.TimeRange
		rrule string
	}{
		{
			name: "tzid skips all-day",
			body: calendar(
				vevent("UID:holiday@test", "DTSTART;VALUE=DATE:20240715", "SUMMARY:Holiday"),
				vevent("UID:work@test",
					"DTSTART;TZID=America/New_York:20240715T090000",
					"DTEND;TZID=America/New_York:20240715T170000",
					"RRULE:FREQ=WEEKLY;BYDAY=MO",
					"SUMMARY:Workday"),
			),
			want:  model.TimeRange{Start: wall(15, 9), End: wall(15, 17), ReferenceTimezoneID: "America/New_York"},
			rrule: "FREQ=WEEKLY;BYDAY=MO",
		},
		{
			name: "utc in default zone",
			body: calendar(vevent("UID:u@test", "DTSTART:20240715T000000Z", "DTEND:20240715T010000Z")),
			want: model.TimeRange{Start: wall(15, 9), End: wall(15, 10), ReferenceTimezoneID: "Asia/Tokyo"},
		},
		{
			name: "end in another zone",
			body: calendar(vevent("UID:x@test",
				"DTSTART;TZID=Europe/London:20240715T140000",
				"DTEND;TZID=America/New_York:20240715T170000")),
			want: model.TimeRange{Start: wall(15, 14), End: wall(15, 22), ReferenceTimezoneID: "Europe/London"},
		},
		{
			name: "missing end",
			body: calendar(vevent("UID:m@test", "DTSTART;TZID=Europe/Paris:20240715T080000")),
			want: model.TimeRange{Start: wall(15, 8), End: wall(15, 9), ReferenceTimezoneID: "Europe/Paris"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := ParseReference(tt.body, "Asia/Tokyo", cat)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ref.Range)
			assert.Equal(t, tt.rrule, ref.RRule)
		})
	}
}

func TestParseReferenceErrors(t *testing.T) {
	cat := newCatalog()

	_, err := ParseReference(nil, "UTC", cat)
	assert.Error(t, err)

	_, err = ParseReference(calendar(), "UTC", cat)
	assert.ErrorIs(t, err, ErrNoEvent)

	_, err = ParseReference(calendar(
		vevent("UID:a@test", "DTSTART;VALUE=DATE:20240715"),
		vevent("UID:b@test", "DTSTART;TZID=Mars/Olympus_Mons:20240715T090000"),
		vevent("UID:c@test", "DTSTART;TZID=UTC:20240715Tbad"),
	), "UTC", cat)
	require.ErrorIs(t, err, ErrNoEvent)
	assert.Contains(t, err.Error(), "all-day")
	assert.Contains(t, err.Error(), "unknown timezone")
	assert.Contains(t, err.Error(), "invalid date/time")
}

func TestExport(t *testing.T) {
	cat := newCatalog()
	r := model.TimeRange{Start: wall(15, 9), End: wall(15, 17), ReferenceTimezoneID: "America/New_York"}
	at := time.Date(2024, 7, 15, 13, 0, 0, 0, time.UTC)
	zones := cat.Annotate([]model.TimezoneDisplay{{ID: "Europe/London"}, {ID: "Asia/Tokyo"}}, at)

	p, err := projector.Project(r, zones, cat, projector.DefaultOptions())
	require.NoError(t, err)

	out := Export(r, zones, p, ExportOptions{Stamp: at, RRule: "FREQ=DAILY;COUNT=2"})

	cal, err := ical.ParseCalendar(strings.NewReader(out))
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 2)

	tokyo := events[1]
	assert.Equal(t, "Tokyo (JST) 10:00 PM - 6:00 AM (+1)", tokyo.GetProperty(ical.ComponentPropertySummary).Value)
	assert.Equal(t, "20240715T130000Z", tokyo.GetProperty(ical.ComponentPropertyDtStart).Value)
	assert.Equal(t, "20240715T210000Z", tokyo.GetProperty(ical.ComponentPropertyDtEnd).Value)
	assert.Equal(t, "FREQ=DAILY;COUNT=2", tokyo.GetProperty(ical.ComponentPropertyRrule).Value)
	assert.Contains(t, out, "X-WR-TIMEZONE:America/New_York")

	london := events[0]
	assert.Equal(t, "London (BST) 2:00 PM - 10:00 PM", london.GetProperty(ical.ComponentPropertySummary).Value)
}

func TestExportImportRoundTrip(t *testing.T) {
	cat := newCatalog()
	r := model.TimeRange{Start: wall(15, 9), End: wall(15, 17), ReferenceTimezoneID: "America/New_York"}
	zones := cat.Annotate([]model.TimezoneDisplay{{ID: "America/New_York"}}, wall(15, 13))
	p, err := projector.Project(r, zones, cat, projector.DefaultOptions())
	require.NoError(t, err)

	ref, err := ParseReference([]byte(Export(r, zones, p, ExportOptions{})), "America/New_York", cat)
	require.NoError(t, err)
	assert.Equal(t, r, ref.Range)
}

func TestFetcherConditional(t *testing.T) {
	body := string(calendar(vevent("UID:f@test", "DTSTART:20240715T000000Z")))
	var hits, notModified atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(body))
	}))

	f := NewFetcher(srv.Client())
	ctx := context.Background()

	got, fromCache, err := f.Fetch(ctx, srv.URL+"/cal.ics?token=secret")
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, body, string(got))

	got, fromCache, err = f.Fetch(ctx, srv.URL+"/cal.ics?token=secret")
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, body, string(got))
	assert.Equal(t, int32(1), notModified.Load())

	srv.Close()
	got, fromCache, err = f.Fetch(ctx, srv.URL+"/cal.ics?token=secret")
	require.NoError(t, err, "falls back to cache when the server is gone")
	assert.True(t, fromCache)
	assert.Equal(t, body, string(got))
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetcherErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := NewFetcher(srv.Client())
	_, _, err := f.Fetch(context.Background(), srv.URL+"/missing.ics")
	assert.Error(t, err)

	_, _, err = f.Fetch(context.Background(), "ftp://example.com/cal.ics")
	assert.Error(t, err)
	_, _, err = f.Fetch(context.Background(), "https:///nohost")
	assert.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/private/abc.ics?token=x"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}

func TestPublicOnlyClientRefusesLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	}))
	defer srv.Close()

	f := NewFetcher(PublicOnlyClient(5 * time.Second))
	_, _, err := f.Fetch(context.Background(), srv.URL+"/cal.ics")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbiddenHost)
}

func TestCheckPublic(t *testing.T) {
	tests := []struct {
		addr string
		ok   bool
	}{
		{"127.0.0.1:443", false},
		{"10.1.2.3:443", false},
		{"192.168.0.10:80", false},
		{"169.254.169.254:80", false},
		{"0.0.0.0:80", false},
		{"[::1]:443", false},
		{"[fd00::1]:443", false},
		{"[::ffff:127.0.0.1]:443", false},
		{"93.184.216.34:443", true},
		{"[2606:2800:220:1::]:443", true},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			err := checkPublic(tt.addr)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbiddenHost)
			}
		})
	}
}

func TestHostAllowed(t *testing.T) {
	assert.NoError(t, HostAllowed("https://anything.test/cal.ics", nil))

	allowed := []string{"calendar.google.com", ".example.com"}
	assert.NoError(t, HostAllowed("webcal://Calendar.Google.com/x.ics", allowed))
	assert.NoError(t, HostAllowed("https://cal.example.com/x.ics", allowed))
	assert.ErrorIs(t, HostAllowed("https://example.org/x.ics", allowed), ErrForbiddenHost)
	assert.ErrorIs(t, HostAllowed("https://evil-example.com/x.ics", allowed), ErrForbiddenHost)

	err := HostAllowed("ftp://example.com/x.ics", allowed)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrForbiddenHost)
}
