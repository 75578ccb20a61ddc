package extract

import (
	"fmt"

	"github.com/Anirudh7369/UFDR-Agent/internal/models"
	"github.com/Anirudh7369/UFDR-Agent/internal/ufdr"
)

// BrowsingExtractor maps the three web-history model kinds to one unified
// BrowsingEntry shape discriminated by EntryType.
type BrowsingExtractor struct{}

func (BrowsingExtractor) Domain() string { return models.DomainBrowsing }

func (BrowsingExtractor) ModelTypes() []string {
	return []string{"VisitedPage", "SearchedItem", "WebBookmark"}
}

func (BrowsingExtractor) Extract(jobID string, m *ufdr.Model) (models.BrowsingEntry, error) {
	entry := models.BrowsingEntry{
		JobID:              jobID,
		EntryID:            m.ID,
		DeletedState:       m.DeletedState,
		DecodingConfidence: m.DecodingConfidence,
		RawXML:             m.RawXML,
		Snapshot:           m.SnapshotJSON(),
	}

	switch m.Type {
	case "VisitedPage":
		entry.EntryType = models.BrowsingVisitedPage
	case "SearchedItem":
		entry.EntryType = models.BrowsingSearch
	case "WebBookmark":
		entry.EntryType = models.BrowsingBookmark
	default:
		return models.BrowsingEntry{}, fmt.Errorf("%w: unsupported browsing model %q", ErrSkipRecord, m.Type)
	}

	for _, f := range m.Fields {
		switch f.Name {
		case "Source":
			entry.SourceApp = f.Value.Scalar
		case "Url":
			entry.URL = f.Value.Scalar
		case "Title":
			entry.Title = f.Value.Scalar
		case "Value":
			if entry.EntryType == models.BrowsingSearch {
				entry.SearchQuery = f.Value.Scalar
			}
		case "Path":
			if entry.EntryType == models.BrowsingBookmark {
				entry.BookmarkPath = f.Value.Scalar
			}
		case "VisitCount":
			entry.VisitCount = parseInt(f.Value.Scalar)
		case "UrlCacheFile":
			entry.URLCacheFile = f.Value.Scalar
		case "LastVisited", "TimeStamp":
			if entry.Timestamp == nil {
				entry.Timestamp, entry.Time = parseTimestamp(f.Value.Scalar)
			}
		}
	}

	switch entry.EntryType {
	case models.BrowsingSearch:
		if entry.SearchQuery == "" {
			return models.BrowsingEntry{}, fmt.Errorf("%w: search without query", ErrSkipRecord)
		}
	default:
		if entry.URL == "" && entry.Title == "" {
			return models.BrowsingEntry{}, fmt.Errorf("%w: %s without url or title", ErrSkipRecord, entry.EntryType)
		}
	}

	return entry, nil
}
