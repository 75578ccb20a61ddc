// Package extract converts UFDR model elements into typed domain records.
// Each extractor is a pure transformation; malformed records surface as
// ErrSkipRecord and never abort the domain pass.
package extract

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Anirudh7369/UFDR-Agent/internal/models"
	"github.com/Anirudh7369/UFDR-Agent/internal/ufdr"
)

// ErrSkipRecord marks a single record whose fields don't fit the expected
// shape. Counted and logged by the caller, not fatal.
var ErrSkipRecord = errors.New("record skipped")

// Extractor turns model elements of its declared types into domain records.
type Extractor[T models.Record] interface {
	Domain() string
	ModelTypes() []string
	Extract(jobID string, m *ufdr.Model) (T, error)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
}

// parseTimestamp parses an ISO 8601 timestamp into epoch millis plus the
// derived calendar time. Unparsable input yields nils, never an error.
func parseTimestamp(s string) (*int64, *time.Time) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			ms := t.UnixMilli()
			utc := t.UTC()
			return &ms, &utc
		}
	}
	return nil, nil
}

// parseDuration parses a colon-delimited duration (HH:MM:SS, MM:SS, or bare
// seconds) into seconds. Absent or garbled durations yield nil.
func parseDuration(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ":")
	var seconds int
	switch len(parts) {
	case 3:
		h, err1 := strconv.Atoi(parts[0])
		m, err2 := strconv.Atoi(parts[1])
		sec, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil {
			return nil
		}
		seconds = h*3600 + m*60 + sec
	case 2:
		m, err1 := strconv.Atoi(parts[0])
		sec, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return nil
		}
		seconds = m*60 + sec
	case 1:
		sec, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil
		}
		seconds = sec
	default:
		return nil
	}
	return &seconds
}

func parseBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

func parseFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseInt(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

// mapVocab normalizes a source vocabulary value to its fixed form; values
// outside the vocabulary pass through unchanged.
func mapVocab(vocab map[string]string, value string) string {
	if mapped, ok := vocab[strings.ToLower(strings.TrimSpace(value))]; ok {
		return mapped
	}
	return value
}

// parseParty decodes the fields of a nested Party model.
func parseParty(fields []ufdr.Field) models.Party {
	var p models.Party
	if v, ok := ufdr.ScalarOf(fields, "Identifier"); ok {
		p.Identifier = v
	}
	if v, ok := ufdr.ScalarOf(fields, "Name"); ok {
		p.Name = v
	}
	if v, ok := ufdr.ScalarOf(fields, "Role"); ok {
		p.Role = v
	}
	if v, ok := ufdr.ScalarOf(fields, "IsPhoneOwner"); ok {
		p.IsPhoneOwner = parseBool(v)
	}
	return p
}

// parseAttachment decodes the fields of a nested Attachment model.
func parseAttachment(fields []ufdr.Field) models.Attachment {
	var a models.Attachment
	if v, ok := ufdr.ScalarOf(fields, "Type"); ok {
		a.AttachmentType = v
	}
	if v, ok := ufdr.ScalarOf(fields, "Filename"); ok {
		a.Filename = v
	}
	if v, ok := ufdr.ScalarOf(fields, "LocalPath"); ok {
		a.FilePath = v
	}
	if v, ok := ufdr.ScalarOf(fields, "ContentType"); ok {
		a.ContentType = v
	}
	if v, ok := ufdr.ScalarOf(fields, "Size"); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			a.FileSize = &n
		}
	}
	return a
}

func millisString(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
