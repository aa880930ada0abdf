package catalog

// zoneEntry is one row of the static identifier table.
type zoneEntry struct {
	ID   string
	Name string
}

// staticZones is the registry the listings are built from. Offsets are never
// stored here; they are resolved per instant.
var staticZones = []zoneEntry{
	{ID: "Pacific/Pago_Pago", Name: "Pago Pago"},
	{ID: "Pacific/Honolulu", Name: "Honolulu"},
	{ID: "America/Anchorage", Name: "Anchorage"},
	{ID: "America/Los_Angeles", Name: "Los Angeles"},
	{ID: "America/Vancouver", Name: "Vancouver"},
	{ID: "America/Denver", Name: "Denver"},
	{ID: "America/Phoenix", Name: "Phoenix"},
	{ID: "America/Chicago", Name: "Chicago"},
	{ID: "America/Mexico_City", Name: "Mexico City"},
	{ID: "America/New_York", Name: "New York"},
	{ID: "America/Toronto", Name: "Toronto"},
	{ID: "America/Santiago", Name: "Santiago"},
	{ID: "America/St_Johns", Name: "St. John's"},
	{ID: "America/Sao_Paulo", Name: "São Paulo"},
	{ID: "America/Argentina/Buenos_Aires", Name: "Buenos Aires"},
	{ID: "Atlantic/Azores", Name: "Azores"},
	{ID: "UTC", Name: "UTC"},
	{ID: "Europe/London", Name: "London"},
	{ID: "Europe/Lisbon", Name: "Lisbon"},
	{ID: "Europe/Paris", Name: "Paris"},
	{ID: "Europe/Berlin", Name: "Berlin"},
	{ID: "Europe/Zurich", Name: "Zurich"},
	{ID: "Europe/Amsterdam", Name: "Amsterdam"},
	{ID: "Europe/Athens", Name: "Athens"},
	{ID: "Africa/Cairo", Name: "Cairo"},
	{ID: "Africa/Johannesburg", Name: "Johannesburg"},
	{ID: "Europe/Istanbul", Name: "Istanbul"},
	{ID: "Europe/Moscow", Name: "Moscow"},
	{ID: "Asia/Tehran", Name: "Tehran"},
	{ID: "Asia/Dubai", Name: "Dubai"},
	{ID: "Asia/Kabul", Name: "Kabul"},
	{ID: "Asia/Karachi", Name: "Karachi"},
	{ID: "Asia/Kolkata", Name: "Kolkata"},
	{ID: "Asia/Kathmandu", Name: "Kathmandu"},
	{ID: "Asia/Dhaka", Name: "Dhaka"},
	{ID: "Asia/Bangkok", Name: "Bangkok"},
	{ID: "Asia/Singapore", Name: "Singapore"},
	{ID: "Asia/Hong_Kong", Name: "Hong Kong"},
	{ID: "Asia/Shanghai", Name: "Shanghai"},
	{ID: "Asia/Tokyo", Name: "Tokyo"},
	{ID: "Asia/Seoul", Name: "Seoul"},
	{ID: "Australia/Adelaide", Name: "Adelaide"},
	{ID: "Australia/Sydney", Name: "Sydney"},
	{ID: "Pacific/Auckland", Name: "Auckland"},
	{ID: "Pacific/Chatham", Name: "Chatham Islands"},
	{ID: "Pacific/Kiritimati", Name: "Kiritimati"},
}

// DefaultBusiness is the curated set of financial/corporate hubs used for the
// business-only view.
var DefaultBusiness = []string{
	"America/New_York",
	"America/Chicago",
	"America/Denver",
	"America/Los_Angeles",
	"Europe/London",
	"Europe/Paris",
	"Europe/Berlin",
	"Europe/Zurich",
	"Asia/Dubai",
	"Asia/Kolkata",
	"Asia/Singapore",
	"Asia/Hong_Kong",
	"Asia/Shanghai",
	"Asia/Tokyo",
	"Australia/Sydney",
	"Pacific/Auckland",
}
