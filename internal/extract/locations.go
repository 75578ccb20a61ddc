package extract

import (
	"fmt"

	"github.com/Anirudh7369/UFDR-Agent/internal/models"
	"github.com/Anirudh7369/UFDR-Agent/internal/ufdr"
)

// LocationsExtractor maps Location models to Location records. Optional
// numeric fields stay null when absent or garbled.
type LocationsExtractor struct{}

func (LocationsExtractor) Domain() string { return models.DomainLocations }

func (LocationsExtractor) ModelTypes() []string { return []string{"Location"} }

func (LocationsExtractor) Extract(jobID string, m *ufdr.Model) (models.Location, error) {
	loc := models.Location{
		JobID:              jobID,
		DeletedState:       m.DeletedState,
		DecodingConfidence: m.DecodingConfidence,
		RawXML:             m.RawXML,
		Snapshot:           m.SnapshotJSON(),
	}

	for _, f := range m.Fields {
		switch f.Name {
		case "Source":
			loc.SourceApp = f.Value.Scalar
		case "Latitude":
			loc.Latitude = parseFloat(f.Value.Scalar)
		case "Longitude":
			loc.Longitude = parseFloat(f.Value.Scalar)
		case "Altitude":
			loc.Altitude = parseFloat(f.Value.Scalar)
		case "Accuracy":
			loc.Accuracy = parseFloat(f.Value.Scalar)
		case "Speed":
			loc.Speed = parseFloat(f.Value.Scalar)
		case "Bearing":
			loc.Bearing = parseFloat(f.Value.Scalar)
		case "Type":
			loc.LocationType = f.Value.Scalar
		case "Category":
			loc.Category = f.Value.Scalar
		case "Address":
			loc.Address = f.Value.Scalar
		case "City":
			loc.City = f.Value.Scalar
		case "State":
			loc.State = f.Value.Scalar
		case "Country":
			loc.Country = f.Value.Scalar
		case "PostalCode":
			loc.PostalCode = f.Value.Scalar
		case "ActivityType":
			loc.ActivityType = f.Value.Scalar
		case "Confidence":
			loc.ActivityConfidence = parseFloat(f.Value.Scalar)
		case "TimeStamp":
			loc.Timestamp, loc.Time = parseTimestamp(f.Value.Scalar)
		}
	}

	if loc.Latitude == nil && loc.Longitude == nil {
		return models.Location{}, fmt.Errorf("%w: location without coordinates", ErrSkipRecord)
	}
	return loc, nil
}
