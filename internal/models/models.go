package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Domain names for the five record categories extracted from a UFDR report.
const (
	DomainApps      = "apps"
	DomainCallLogs  = "call_logs"
	DomainMessages  = "messages"
	DomainLocations = "locations"
	DomainBrowsing  = "browsing_history"
)

// AllDomains returns every extractable domain in a fixed order.
func AllDomains() []string {
	return []string{DomainApps, DomainCallLogs, DomainMessages, DomainLocations, DomainBrowsing}
}

// Per-domain and overall job statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Record is implemented by every persisted domain record. Key returns the
// natural key used for deduplication within one job and domain.
type Record interface {
	Key() string
}

// Party represents one participant of a call or message.
type Party struct {
	Identifier   string `json:"identifier"`
	Name         string `json:"name,omitempty"`
	Role         string `json:"role,omitempty"`
	IsPhoneOwner bool   `json:"is_phone_owner"`
}

// Attachment represents a file attached to an instant message.
type Attachment struct {
	AttachmentType string `json:"attachment_type,omitempty"`
	Filename       string `json:"filename,omitempty"`
	FilePath       string `json:"file_path,omitempty"`
	FileSize       *int64 `json:"file_size,omitempty"`
	ContentType    string `json:"content_type,omitempty"`
}

// App is one installed application record.
type App struct {
	JobID                 string     `json:"job_id"`
	Identifier            string     `json:"app_identifier"`
	Name                  string     `json:"app_name,omitempty"`
	Version               string     `json:"app_version,omitempty"`
	GUID                  string     `json:"app_guid,omitempty"`
	InstallTimestamp      *int64     `json:"install_timestamp,omitempty"`
	InstallTime           *time.Time `json:"install_timestamp_dt,omitempty"`
	LastLaunchedTimestamp *int64     `json:"last_launched_timestamp,omitempty"`
	LastLaunchedTime      *time.Time `json:"last_launched_dt,omitempty"`
	DecodingStatus        string     `json:"decoding_status,omitempty"`
	IsEmulatable          bool       `json:"is_emulatable"`
	OperationMode         string     `json:"operation_mode,omitempty"`
	DeletedState          string     `json:"deleted_state,omitempty"`
	DecodingConfidence    string     `json:"decoding_confidence,omitempty"`
	Permissions           []string   `json:"permissions,omitempty"`
	Categories            []string   `json:"categories,omitempty"`
	DirectoryPaths        []string   `json:"associated_directory_paths,omitempty"`
	RawXML                string     `json:"raw_xml,omitempty"`
	Snapshot              string     `json:"snapshot,omitempty"`
}

func (a App) Key() string { return a.Identifier }

// CallLog is one call record from any source application.
type CallLog struct {
	JobID              string     `json:"job_id"`
	CallID             string     `json:"call_id"`
	KeySynthesized     bool       `json:"key_synthesized"`
	SourceApp          string     `json:"source_app,omitempty"`
	Direction          string     `json:"direction,omitempty"`
	CallType           string     `json:"call_type,omitempty"`
	Status             string     `json:"status,omitempty"`
	Timestamp          *int64     `json:"call_timestamp,omitempty"`
	Time               *time.Time `json:"call_timestamp_dt,omitempty"`
	DurationSeconds    *int       `json:"duration_seconds,omitempty"`
	DurationString     string     `json:"duration_string,omitempty"`
	CountryCode        string     `json:"country_code,omitempty"`
	NetworkCode        string     `json:"network_code,omitempty"`
	NetworkName        string     `json:"network_name,omitempty"`
	Account            string     `json:"account,omitempty"`
	IsVideoCall        bool       `json:"is_video_call"`
	DeletedState       string     `json:"deleted_state,omitempty"`
	DecodingConfidence string     `json:"decoding_confidence,omitempty"`
	Parties            []Party    `json:"parties,omitempty"`
	From               *Party     `json:"from_party,omitempty"`
	To                 *Party     `json:"to_party,omitempty"`
	RawXML             string     `json:"raw_xml,omitempty"`
	Snapshot           string     `json:"snapshot,omitempty"`
}

func (c CallLog) Key() string { return c.CallID }

// Message is one instant message record from any platform.
type Message struct {
	JobID              string       `json:"job_id"`
	MessageID          string       `json:"message_id"`
	ThreadID           string       `json:"thread_id,omitempty"`
	KeySynthesized     bool         `json:"key_synthesized"`
	SourceApp          string       `json:"source_app"`
	Body               string       `json:"body,omitempty"`
	MessageType        string       `json:"message_type,omitempty"`
	Platform           string       `json:"platform,omitempty"`
	Timestamp          *int64       `json:"message_timestamp,omitempty"`
	Time               *time.Time   `json:"message_timestamp_dt,omitempty"`
	DeletedState       string       `json:"deleted_state,omitempty"`
	DecodingConfidence string       `json:"decoding_confidence,omitempty"`
	Parties            []Party      `json:"parties,omitempty"`
	From               *Party       `json:"from_party,omitempty"`
	To                 *Party       `json:"to_party,omitempty"`
	Attachments        []Attachment `json:"attachments,omitempty"`
	HasAttachments     bool         `json:"has_attachments"`
	AttachmentCount    int          `json:"attachment_count"`
	RawXML             string       `json:"raw_xml,omitempty"`
	Snapshot           string       `json:"snapshot,omitempty"`
}

func (m Message) Key() string { return m.MessageID + "|" + m.ThreadID }

// Location is one recorded location fix.
type Location struct {
	JobID              string     `json:"job_id"`
	SourceApp          string     `json:"source_app,omitempty"`
	Latitude           *float64   `json:"latitude,omitempty"`
	Longitude          *float64   `json:"longitude,omitempty"`
	Altitude           *float64   `json:"altitude,omitempty"`
	Accuracy           *float64   `json:"accuracy,omitempty"`
	Speed              *float64   `json:"speed,omitempty"`
	Bearing            *float64   `json:"bearing,omitempty"`
	LocationType       string     `json:"location_type,omitempty"`
	Category           string     `json:"category,omitempty"`
	Address            string     `json:"address,omitempty"`
	City               string     `json:"city,omitempty"`
	State              string     `json:"state,omitempty"`
	Country            string     `json:"country,omitempty"`
	PostalCode         string     `json:"postal_code,omitempty"`
	ActivityType       string     `json:"activity_type,omitempty"`
	ActivityConfidence *float64   `json:"activity_confidence,omitempty"`
	Timestamp          *int64     `json:"location_timestamp,omitempty"`
	Time               *time.Time `json:"location_timestamp_dt,omitempty"`
	DeletedState       string     `json:"deleted_state,omitempty"`
	DecodingConfidence string     `json:"decoding_confidence,omitempty"`
	RawXML             string     `json:"raw_xml,omitempty"`
	Snapshot           string     `json:"snapshot,omitempty"`
}

func (l Location) Key() string {
	return strings.Join([]string{
		l.SourceApp,
		formatMillis(l.Timestamp),
		formatFloat(l.Latitude),
		formatFloat(l.Longitude),
	}, "|")
}

// Browsing entry discriminants.
const (
	BrowsingVisitedPage = "visited_page"
	BrowsingSearch      = "search"
	BrowsingBookmark    = "bookmark"
)

// BrowsingEntry unifies visited pages, searches and bookmarks into one
// record shape discriminated by EntryType.
type BrowsingEntry struct {
	JobID              string     `json:"job_id"`
	EntryID            string     `json:"entry_id,omitempty"`
	EntryType          string     `json:"entry_type"`
	SourceApp          string     `json:"source_browser,omitempty"`
	URL                string     `json:"url,omitempty"`
	Title              string     `json:"title,omitempty"`
	SearchQuery        string     `json:"search_query,omitempty"`
	BookmarkPath       string     `json:"bookmark_path,omitempty"`
	VisitCount         *int       `json:"visit_count,omitempty"`
	URLCacheFile       string     `json:"url_cache_file,omitempty"`
	Timestamp          *int64     `json:"last_visited,omitempty"`
	Time               *time.Time `json:"last_visited_dt,omitempty"`
	DeletedState       string     `json:"deleted_state,omitempty"`
	DecodingConfidence string     `json:"decoding_confidence,omitempty"`
	RawXML             string     `json:"raw_xml,omitempty"`
	Snapshot           string     `json:"snapshot,omitempty"`
}

func (b BrowsingEntry) Key() string {
	subject := b.URL
	if b.EntryType == BrowsingSearch {
		subject = b.SearchQuery
	}
	return strings.Join([]string{b.EntryType, subject, b.SourceApp, formatMillis(b.Timestamp)}, "|")
}

// DomainStatus is the per-domain view of an extraction job.
type DomainStatus struct {
	Status    string `json:"status"`
	Extracted bool   `json:"extracted"`
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Error     string `json:"error,omitempty"`
}

// JobStatus is the poll-friendly snapshot of one extraction job.
type JobStatus struct {
	JobID         string                  `json:"job_id"`
	OverallStatus string                  `json:"overall_status"`
	Domains       map[string]DomainStatus `json:"per_domain"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// DeriveOverall computes the job-level status from its per-domain statuses.
// It is never stored; every publisher backend derives it at snapshot time.
func DeriveOverall(domains map[string]DomainStatus) string {
	if len(domains) == 0 {
		return StatusPending
	}
	completed, pending := 0, 0
	for _, d := range domains {
		switch d.Status {
		case StatusFailed:
			return StatusFailed
		case StatusCompleted:
			completed++
		case StatusPending:
			pending++
		}
	}
	if completed == len(domains) {
		return StatusCompleted
	}
	if pending == len(domains) {
		return StatusPending
	}
	return StatusProcessing
}

func formatMillis(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.6f", *v)
}
