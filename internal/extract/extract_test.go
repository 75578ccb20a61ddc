package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Anirudh7369/UFDR-Agent/internal/models"
	"github.com/Anirudh7369/UFDR-Agent/internal/ufdr"
)

func scalar(name, value string) ufdr.Field {
	return ufdr.Field{Name: name, Value: ufdr.FieldValue{Kind: ufdr.ScalarValue, Scalar: value}}
}

func multi(name string, values ...string) ufdr.Field {
	var children []ufdr.Field
	for _, v := range values {
		children = append(children, scalar("value", v))
	}
	return ufdr.Field{Name: name, Value: ufdr.FieldValue{Kind: ufdr.StructuredValue, Children: children}}
}

func partyField(identifier, name, role string, owner bool) ufdr.Field {
	children := []ufdr.Field{
		scalar("Identifier", identifier),
		scalar("Name", name),
		scalar("Role", role),
	}
	if owner {
		children = append(children, scalar("IsPhoneOwner", "true"))
	}
	return ufdr.Field{Name: "Party", Value: ufdr.FieldValue{Kind: ufdr.StructuredValue, Children: children}}
}

func structuredField(name string, children ...ufdr.Field) ufdr.Field {
	return ufdr.Field{Name: name, Value: ufdr.FieldValue{Kind: ufdr.StructuredValue, Children: children}}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  *int
	}{
		{"00:01:17", intp(77)},
		{"01:02:03", intp(3723)},
		{"02:30", intp(150)},
		{"45", intp(45)},
		{"", nil},
		{"abc", nil},
		{"00:xx:17", nil},
		{"1:2:3:4", nil},
	}
	for _, tt := range tests {
		got := parseDuration(tt.input)
		if tt.want == nil {
			assert.Nil(t, got, "input %q", tt.input)
			continue
		}
		require.NotNil(t, got, "input %q", tt.input)
		assert.Equal(t, *tt.want, *got, "input %q", tt.input)
	}
}

func TestParseTimestamp(t *testing.T) {
	ms, ts := parseTimestamp("2023-06-15T10:30:00+02:00")
	require.NotNil(t, ms)
	require.NotNil(t, ts)
	assert.Equal(t, time.Date(2023, 6, 15, 8, 30, 0, 0, time.UTC), *ts)
	assert.Equal(t, ts.UnixMilli(), *ms)

	ms, ts = parseTimestamp("2023-06-15T10:30:00.500")
	require.NotNil(t, ms)
	assert.Equal(t, int64(500), *ms%1000)

	ms, ts = parseTimestamp("not a time")
	assert.Nil(t, ms)
	assert.Nil(t, ts)

	ms, ts = parseTimestamp("")
	assert.Nil(t, ms)
	assert.Nil(t, ts)
}

func TestAppsExtractor(t *testing.T) {
	m := &ufdr.Model{
		Type: "InstalledApplication",
		ID:   "a1",
		Fields: []ufdr.Field{
			scalar("Identifier", "com.whatsapp"),
			scalar("Name", "WhatsApp"),
			scalar("Version", "2.23.1"),
			scalar("PurchaseDate", "2023-01-10T08:00:00Z"),
			scalar("IsEmulatable", "True"),
			multi("Permissions", "CAMERA", "CONTACTS"),
			multi("Categories", "Communication"),
		},
	}

	app, err := (AppsExtractor{}).Extract("job1", m)
	require.NoError(t, err)
	assert.Equal(t, "job1", app.JobID)
	assert.Equal(t, "com.whatsapp", app.Identifier)
	assert.Equal(t, "com.whatsapp", app.Key())
	assert.Equal(t, "WhatsApp", app.Name)
	assert.True(t, app.IsEmulatable)
	assert.Equal(t, []string{"CAMERA", "CONTACTS"}, app.Permissions)
	assert.Equal(t, []string{"Communication"}, app.Categories)
	require.NotNil(t, app.InstallTimestamp)
	assert.Equal(t, time.Date(2023, 1, 10, 8, 0, 0, 0, time.UTC).UnixMilli(), *app.InstallTimestamp)
}

func TestAppsExtractorSkipsWithoutIdentifier(t *testing.T) {
	m := &ufdr.Model{Type: "InstalledApplication", Fields: []ufdr.Field{scalar("Name", "Mystery")}}
	_, err := (AppsExtractor{}).Extract("job1", m)
	assert.ErrorIs(t, err, ErrSkipRecord)
}

func TestCallsExtractorGroupCall(t *testing.T) {
	m := &ufdr.Model{
		Type:         "Call",
		ID:           "c42",
		DeletedState: "Intact",
		Fields: []ufdr.Field{
			scalar("Source", "WhatsApp"),
			scalar("Direction", "Incoming"),
			scalar("Type", "FaceTime"),
			scalar("Status", "Answered"),
			scalar("TimeStamp", "2023-06-15T10:30:00Z"),
			scalar("Duration", "00:01:17"),
			structuredField("Parties",
				partyField("+15550001", "Alice", "From", false),
				partyField("+15550002", "Bob", "To", true),
				partyField("+15550003", "Carol", "To", false),
			),
		},
	}

	call, err := (CallsExtractor{}).Extract("job1", m)
	require.NoError(t, err)
	assert.Equal(t, "c42", call.CallID)
	assert.False(t, call.KeySynthesized)
	assert.Equal(t, "incoming", call.Direction)
	assert.Equal(t, "video", call.CallType, "FaceTime normalizes to video")
	assert.Equal(t, "answered", call.Status)
	require.NotNil(t, call.DurationSeconds)
	assert.Equal(t, 77, *call.DurationSeconds)
	assert.Equal(t, "00:01:17", call.DurationString)

	// all three parties retained in document order
	require.Len(t, call.Parties, 3)
	assert.Equal(t, "+15550001", call.Parties[0].Identifier)
	assert.Equal(t, "+15550003", call.Parties[2].Identifier)
	assert.True(t, call.Parties[1].IsPhoneOwner)

	// primary from/to projection is deterministic
	require.NotNil(t, call.From)
	require.NotNil(t, call.To)
	assert.Equal(t, "+15550001", call.From.Identifier)
	assert.Equal(t, "+15550002", call.To.Identifier, "first To party wins")
}

func TestCallsExtractorSynthesizesKey(t *testing.T) {
	m := &ufdr.Model{
		Type: "Call",
		Fields: []ufdr.Field{
			scalar("Source", "Telegram"),
			scalar("TimeStamp", "2023-06-15T10:30:00Z"),
			structuredField("Parties",
				partyField("+15550001", "", "From", false),
				partyField("+15550002", "", "To", false),
			),
		},
	}

	call, err := (CallsExtractor{}).Extract("job1", m)
	require.NoError(t, err)
	assert.True(t, call.KeySynthesized)
	assert.Equal(t, "Telegram|1686825000000|+15550001|+15550002", call.CallID)

	// same fields, same key
	again, err := (CallsExtractor{}).Extract("job1", m)
	require.NoError(t, err)
	assert.Equal(t, call.CallID, again.CallID)
}

func TestCallsExtractorUnknownVocabPassesThrough(t *testing.T) {
	m := &ufdr.Model{
		Type:   "Call",
		ID:     "c1",
		Fields: []ufdr.Field{scalar("Direction", "Sideways")},
	}
	call, err := (CallsExtractor{}).Extract("job1", m)
	require.NoError(t, err)
	assert.Equal(t, "Sideways", call.Direction)
}

func TestMessagesExtractor(t *testing.T) {
	m := &ufdr.Model{
		Type: "InstantMessage",
		ID:   "m7",
		Fields: []ufdr.Field{
			scalar("Source", "WhatsApp"),
			scalar("Body", "see you at 5"),
			scalar("Type", "InstantMessage"),
			scalar("TimeStamp", "2023-06-15T10:30:00Z"),
			scalar("ThreadId", "t-99"),
			structuredField("From", partyField("+15550001", "Alice", "", false)),
			structuredField("To",
				partyField("+15550002", "Bob", "", false),
				partyField("+15550003", "Carol", "", false),
			),
			structuredField("Attachments", ufdr.Field{
				Name: "Attachment",
				Value: ufdr.FieldValue{Kind: ufdr.StructuredValue, Children: []ufdr.Field{
					scalar("Filename", "photo.jpg"),
					scalar("ContentType", "image/jpeg"),
					scalar("Size", "2048"),
				}},
			}),
		},
	}

	msg, err := (MessagesExtractor{}).Extract("job1", m)
	require.NoError(t, err)
	assert.Equal(t, "m7", msg.MessageID)
	assert.Equal(t, "t-99", msg.ThreadID)
	assert.Equal(t, "m7|t-99", msg.Key())
	assert.Equal(t, "instant_message", msg.MessageType)
	require.NotNil(t, msg.From)
	assert.Equal(t, "From", msg.From.Role, "role defaulted from field name")
	require.NotNil(t, msg.To)
	assert.Equal(t, "+15550002", msg.To.Identifier, "first recipient is primary")
	assert.Len(t, msg.Parties, 3)

	assert.True(t, msg.HasAttachments)
	assert.Equal(t, 1, msg.AttachmentCount)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "photo.jpg", msg.Attachments[0].Filename)
	require.NotNil(t, msg.Attachments[0].FileSize)
	assert.Equal(t, int64(2048), *msg.Attachments[0].FileSize)
}

func TestMessagesExtractorSkipsWithoutSource(t *testing.T) {
	m := &ufdr.Model{Type: "InstantMessage", ID: "m1", Fields: []ufdr.Field{scalar("Body", "hi")}}
	_, err := (MessagesExtractor{}).Extract("job1", m)
	assert.ErrorIs(t, err, ErrSkipRecord)
}

func TestMessagesExtractorSynthesizesKey(t *testing.T) {
	m := &ufdr.Model{
		Type: "InstantMessage",
		Fields: []ufdr.Field{
			scalar("Source", "Signal"),
			scalar("TimeStamp", "2023-06-15T10:30:00Z"),
			structuredField("From", partyField("+15550001", "", "", false)),
			structuredField("To", partyField("+15550002", "", "", false)),
		},
	}
	msg, err := (MessagesExtractor{}).Extract("job1", m)
	require.NoError(t, err)
	assert.True(t, msg.KeySynthesized)
	assert.Equal(t, "Signal|1686825000000|+15550001|+15550002", msg.MessageID)
}

func TestLocationsExtractor(t *testing.T) {
	m := &ufdr.Model{
		Type: "Location",
		ID:   "l1",
		Fields: []ufdr.Field{
			scalar("Source", "GoogleMaps"),
			scalar("Latitude", "52.520008"),
			scalar("Longitude", "13.404954"),
			scalar("Accuracy", "12.5"),
			scalar("TimeStamp", "2023-06-15T10:30:00Z"),
		},
	}

	loc, err := (LocationsExtractor{}).Extract("job1", m)
	require.NoError(t, err)
	require.NotNil(t, loc.Latitude)
	assert.InDelta(t, 52.520008, *loc.Latitude, 1e-9)
	require.NotNil(t, loc.Accuracy)
	assert.Equal(t, "GoogleMaps|1686825000000|52.520008|13.404954", loc.Key())
}

func TestLocationsExtractorSkipsWithoutCoordinates(t *testing.T) {
	m := &ufdr.Model{
		Type:   "Location",
		Fields: []ufdr.Field{scalar("Source", "GoogleMaps"), scalar("Latitude", "garbled")},
	}
	_, err := (LocationsExtractor{}).Extract("job1", m)
	assert.ErrorIs(t, err, ErrSkipRecord)
}

func TestBrowsingExtractorEntryTypes(t *testing.T) {
	visited := &ufdr.Model{Type: "VisitedPage", ID: "v1", Fields: []ufdr.Field{
		scalar("Source", "Chrome"),
		scalar("Url", "https://example.com"),
		scalar("Title", "Example"),
		scalar("VisitCount", "4"),
		scalar("LastVisited", "2023-06-15T10:30:00Z"),
	}}
	search := &ufdr.Model{Type: "SearchedItem", ID: "s1", Fields: []ufdr.Field{
		scalar("Source", "Chrome"),
		scalar("Value", "weather berlin"),
		scalar("TimeStamp", "2023-06-15T10:31:00Z"),
	}}
	bookmark := &ufdr.Model{Type: "WebBookmark", ID: "b1", Fields: []ufdr.Field{
		scalar("Source", "Safari"),
		scalar("Url", "https://news.example.com"),
		scalar("Path", "Favorites/News"),
	}}

	ex := BrowsingExtractor{}

	v, err := ex.Extract("job1", visited)
	require.NoError(t, err)
	assert.Equal(t, models.BrowsingVisitedPage, v.EntryType)
	require.NotNil(t, v.VisitCount)
	assert.Equal(t, 4, *v.VisitCount)

	s, err := ex.Extract("job1", search)
	require.NoError(t, err)
	assert.Equal(t, models.BrowsingSearch, s.EntryType)
	assert.Equal(t, "weather berlin", s.SearchQuery)
	assert.Contains(t, s.Key(), "weather berlin")

	b, err := ex.Extract("job1", bookmark)
	require.NoError(t, err)
	assert.Equal(t, models.BrowsingBookmark, b.EntryType)
	assert.Equal(t, "Favorites/News", b.BookmarkPath)
}

func TestBrowsingExtractorSkipRules(t *testing.T) {
	ex := BrowsingExtractor{}

	_, err := ex.Extract("job1", &ufdr.Model{Type: "SearchedItem", Fields: []ufdr.Field{
		scalar("Source", "Chrome"),
	}})
	assert.ErrorIs(t, err, ErrSkipRecord, "search without query")

	_, err = ex.Extract("job1", &ufdr.Model{Type: "VisitedPage", Fields: []ufdr.Field{
		scalar("Source", "Chrome"),
	}})
	assert.ErrorIs(t, err, ErrSkipRecord, "visit without url or title")
}

func intp(v int) *int { return &v }
