package extract

import (
	"strings"

	"github.com/Anirudh7369/UFDR-Agent/internal/models"
	"github.com/Anirudh7369/UFDR-Agent/internal/ufdr"
)

var (
	callDirections = map[string]string{
		"incoming": "incoming",
		"outgoing": "outgoing",
		"missed":   "missed",
		"unknown":  "unknown",
	}
	callTypes = map[string]string{
		"voice":      "voice",
		"video":      "video",
		"facetime":   "video",
		"audio":      "voice",
		"conference": "conference",
	}
	callStatuses = map[string]string{
		"answered":  "answered",
		"missed":    "missed",
		"rejected":  "rejected",
		"cancelled": "cancelled",
		"canceled":  "cancelled",
		"unknown":   "unknown",
	}
)

// CallsExtractor maps Call models to CallLog records. Records without a
// stable identifier get a deterministic composite key and are flagged.
type CallsExtractor struct{}

func (CallsExtractor) Domain() string { return models.DomainCallLogs }

func (CallsExtractor) ModelTypes() []string { return []string{"Call"} }

func (CallsExtractor) Extract(jobID string, m *ufdr.Model) (models.CallLog, error) {
	call := models.CallLog{
		JobID:              jobID,
		CallID:             m.ID,
		DeletedState:       m.DeletedState,
		DecodingConfidence: m.DecodingConfidence,
		RawXML:             m.RawXML,
		Snapshot:           m.SnapshotJSON(),
	}

	for _, f := range m.Fields {
		switch f.Name {
		case "Source":
			call.SourceApp = f.Value.Scalar
		case "Direction":
			call.Direction = mapVocab(callDirections, f.Value.Scalar)
		case "Type":
			call.CallType = mapVocab(callTypes, f.Value.Scalar)
		case "Status":
			call.Status = mapVocab(callStatuses, f.Value.Scalar)
		case "TimeStamp":
			call.Timestamp, call.Time = parseTimestamp(f.Value.Scalar)
		case "Duration":
			call.DurationString = f.Value.Scalar
			call.DurationSeconds = parseDuration(f.Value.Scalar)
		case "CountryCode":
			call.CountryCode = f.Value.Scalar
		case "NetworkCode":
			call.NetworkCode = f.Value.Scalar
		case "NetworkName":
			call.NetworkName = f.Value.Scalar
		case "Account":
			call.Account = f.Value.Scalar
		case "VideoCall":
			call.IsVideoCall = parseBool(f.Value.Scalar)
		case "Parties":
			if f.Value.Kind == ufdr.StructuredValue {
				for _, child := range f.Value.Children {
					if child.Name != "Party" {
						continue
					}
					p := parseParty(child.Value.Children)
					call.Parties = append(call.Parties, p)
				}
			}
		}
	}

	// Primary from/to projection: first party of each role, document order.
	for i := range call.Parties {
		p := call.Parties[i]
		switch {
		case p.Role == "From" && call.From == nil:
			call.From = &p
		case p.Role == "To" && call.To == nil:
			call.To = &p
		}
	}

	if call.CallID == "" {
		call.CallID = synthesizeCallKey(call)
		call.KeySynthesized = true
	}

	return call, nil
}

// synthesizeCallKey builds a fallback composite key for id-less call
// records: source app, timestamp and all party identifiers in document
// order. Callers can spot synthesized keys via the KeySynthesized flag.
func synthesizeCallKey(call models.CallLog) string {
	parts := []string{call.SourceApp, millisString(call.Timestamp)}
	for _, p := range call.Parties {
		parts = append(parts, p.Identifier)
	}
	return strings.Join(parts, "|")
}
