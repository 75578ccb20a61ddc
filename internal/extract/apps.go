package extract

import (
	"fmt"

	"github.com/Anirudh7369/UFDR-Agent/internal/models"
	"github.com/Anirudh7369/UFDR-Agent/internal/ufdr"
)

// AppsExtractor maps InstalledApplication models to App records.
type AppsExtractor struct{}

func (AppsExtractor) Domain() string { return models.DomainApps }

func (AppsExtractor) ModelTypes() []string { return []string{"InstalledApplication"} }

func (AppsExtractor) Extract(jobID string, m *ufdr.Model) (models.App, error) {
	app := models.App{
		JobID:              jobID,
		DeletedState:       m.DeletedState,
		DecodingConfidence: m.DecodingConfidence,
		RawXML:             m.RawXML,
		Snapshot:           m.SnapshotJSON(),
	}

	for _, f := range m.Fields {
		switch f.Name {
		case "Identifier":
			app.Identifier = f.Value.Scalar
		case "Name":
			app.Name = f.Value.Scalar
		case "Version":
			app.Version = f.Value.Scalar
		case "AppGUID":
			app.GUID = f.Value.Scalar
		case "PurchaseDate":
			app.InstallTimestamp, app.InstallTime = parseTimestamp(f.Value.Scalar)
		case "LastLaunched":
			app.LastLaunchedTimestamp, app.LastLaunchedTime = parseTimestamp(f.Value.Scalar)
		case "DecodingStatus":
			app.DecodingStatus = f.Value.Scalar
		case "IsEmulatable":
			app.IsEmulatable = parseBool(f.Value.Scalar)
		case "OperationMode":
			app.OperationMode = f.Value.Scalar
		case "Permissions":
			app.Permissions = f.Value.ScalarList()
		case "Categories":
			app.Categories = f.Value.ScalarList()
		case "AssociatedDirectoryPaths":
			app.DirectoryPaths = f.Value.ScalarList()
		}
	}

	if app.Identifier == "" {
		return models.App{}, fmt.Errorf("%w: application without identifier", ErrSkipRecord)
	}
	return app, nil
}
