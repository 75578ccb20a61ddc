package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordKeys(t *testing.T) {
	assert.Equal(t, "com.whatsapp", App{Identifier: "com.whatsapp"}.Key())
	assert.Equal(t, "c1", CallLog{CallID: "c1"}.Key())
	assert.Equal(t, "m1|t9", Message{MessageID: "m1", ThreadID: "t9"}.Key())
	assert.Equal(t, "m1|", Message{MessageID: "m1"}.Key())
}

func TestLocationKey(t *testing.T) {
	ms := int64(1686825000000)
	lat, lon := 52.520008, 13.404954
	loc := Location{SourceApp: "GoogleMaps", Timestamp: &ms, Latitude: &lat, Longitude: &lon}
	assert.Equal(t, "GoogleMaps|1686825000000|52.520008|13.404954", loc.Key())

	// missing parts keep their slot, so keys stay unambiguous
	assert.Equal(t, "GoogleMaps|||", Location{SourceApp: "GoogleMaps"}.Key())
}

func TestBrowsingEntryKey(t *testing.T) {
	visit := BrowsingEntry{EntryType: BrowsingVisitedPage, URL: "https://example.com", SourceApp: "Chrome"}
	assert.Equal(t, "visited_page|https://example.com|Chrome|", visit.Key())

	search := BrowsingEntry{EntryType: BrowsingSearch, SearchQuery: "weather", SourceApp: "Chrome"}
	assert.Equal(t, "search|weather|Chrome|", search.Key())
}

func TestAllDomainsOrder(t *testing.T) {
	assert.Equal(t,
		[]string{DomainApps, DomainCallLogs, DomainMessages, DomainLocations, DomainBrowsing},
		AllDomains())
}
