package ingestion

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Anirudh7369/UFDR-Agent/internal/archive"
	"github.com/Anirudh7369/UFDR-Agent/internal/config"
	"github.com/Anirudh7369/UFDR-Agent/internal/models"
	"github.com/Anirudh7369/UFDR-Agent/internal/progress"
	"github.com/Anirudh7369/UFDR-Agent/internal/storage"
)

const fullReport = `<?xml version="1.0" encoding="utf-8"?>
<project xmlns="http://pa.cellebrite.com/report/2.0" name="case-1">
<decodedData>
<modelType type="InstalledApplication">
  <model type="InstalledApplication" id="a1">
    <field name="Identifier"><value>com.whatsapp</value></field>
    <field name="Name"><value>WhatsApp</value></field>
  </model>
  <model type="InstalledApplication" id="a2">
    <field name="Identifier"><value>com.dup</value></field>
    <field name="Version"><value>1.0</value></field>
  </model>
  <model type="InstalledApplication" id="a3">
    <field name="Identifier"><value>com.signal</value></field>
  </model>
  <model type="InstalledApplication" id="a4">
    <field name="Identifier"><value>com.dup</value></field>
    <field name="Version"><value>2.0</value></field>
  </model>
  <model type="InstalledApplication" id="a5">
    <field name="Identifier"><value>com.maps</value></field>
  </model>
</modelType>
<modelType type="Call">
  <model type="Call" id="c1">
    <field name="Source"><value>Phone</value></field>
    <field name="Direction"><value>Incoming</value></field>
    <field name="Duration"><value>00:01:17</value></field>
  </model>
  <model type="Call" id="c2">
    <field name="Source"><value>Phone</value></field>
  </model>
  <model type="Call">
    <field name="Source"><value>WhatsApp</value></field>
    <field name="TimeStamp"><value>2023-06-15T10:30:00Z</value></field>
    <multiModelField name="Parties">
      <model type="Party"><field name="Identifier"><value>+15550001</value></field></model>
    </multiModelField>
  </model>
</modelType>
<modelType type="InstantMessage">
  <model type="InstantMessage" id="m1">
    <field name="Body"><value>no source app on this one</value></field>
  </model>
</modelType>
<modelType type="Location">
  <model type="Location" id="l1">
    <field name="Source"><value>GoogleMaps</value></field>
    <field name="Latitude"><value>52.52</value></field>
    <field name="Longitude"><value>13.40</value></field>
  </model>
</modelType>
<modelType type="SearchedItem">
  <model type="SearchedItem" id="s1">
    <field name="Source"><value>Chrome</value></field>
    <field name="Value"><value>weather berlin</value></field>
  </model>
  <model type="VisitedPage" id="v1">
    <field name="Source"><value>Chrome</value></field>
  </model>
</modelType>
</decodedData>
</project>`

func writeArchive(t *testing.T, reportXML string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "case.ufdr")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("report.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(reportXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func newTestService(t *testing.T) (*Service, storage.RecordStore, progress.Publisher) {
	t.Helper()
	cfg := &config.Config{
		Stager: config.StagerConfig{
			S3Region:   "us-east-1",
			RetryCount: 1,
			Timeout:    5 * time.Second,
			TempDir:    t.TempDir(),
		},
	}
	stager, err := archive.NewStager(cfg.Stager)
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	pub := progress.NewMemoryPublisher()
	return NewService(cfg, stager, store, pub), store, pub
}

func TestRunJobFullExtraction(t *testing.T) {
	svc, store, pub := newTestService(t)
	path := writeArchive(t, fullReport)
	ctx := context.Background()

	require.NoError(t, svc.RunJob(ctx, Job{ID: "j1", ArchiveSource: path}))

	status, err := pub.Snapshot(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status.OverallStatus)
	require.Len(t, status.Domains, 5)

	// apps: 5 matched, duplicate identifier collapses to 4 persisted rows
	apps := status.Domains[models.DomainApps]
	assert.Equal(t, models.StatusCompleted, apps.Status)
	assert.Equal(t, 5, apps.Total)
	assert.Equal(t, 4, apps.Processed)
	assert.True(t, apps.Extracted)

	storedApps, err := store.GetApps(ctx, "j1", 0, 0)
	require.NoError(t, err)
	require.Len(t, storedApps, 4)
	for _, a := range storedApps {
		if a.Identifier == "com.dup" {
			assert.Equal(t, "2.0", a.Version, "last duplicate wins")
		}
	}

	// calls: the id-less record gets a synthesized key
	calls, err := store.GetCallLogs(ctx, "j1", 0, 0)
	require.NoError(t, err)
	require.Len(t, calls, 3)
	synthesized := 0
	for _, c := range calls {
		if c.KeySynthesized {
			synthesized++
			assert.NotEmpty(t, c.CallID)
		}
	}
	assert.Equal(t, 1, synthesized)

	// messages: the only record lacks a source app and is skipped
	msgs := status.Domains[models.DomainMessages]
	assert.Equal(t, models.StatusCompleted, msgs.Status)
	assert.Equal(t, 1, msgs.Total)
	assert.Equal(t, 0, msgs.Processed)
	assert.False(t, msgs.Extracted)

	locs, err := store.GetLocations(ctx, "j1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, locs, 1)

	// browsing: search kept, bare visited page skipped
	entries, err := store.GetBrowsingEntries(ctx, "j1", 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.BrowsingSearch, entries[0].EntryType)
}

func TestRunJobIdempotent(t *testing.T) {
	svc, store, pub := newTestService(t)
	path := writeArchive(t, fullReport)
	ctx := context.Background()

	require.NoError(t, svc.RunJob(ctx, Job{ID: "j1", ArchiveSource: path}))
	first, err := pub.Snapshot(ctx, "j1")
	require.NoError(t, err)

	require.NoError(t, svc.RunJob(ctx, Job{ID: "j1", ArchiveSource: path}))
	second, err := pub.Snapshot(ctx, "j1")
	require.NoError(t, err)

	n, err := store.CountApps(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 4, n, "re-ingesting must not duplicate rows")

	n, err = store.CountCallLogs(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// the published snapshot converges too: counters reset at job start
	// instead of accumulating across runs
	assert.Equal(t, first.Domains, second.Domains)
	apps := second.Domains[models.DomainApps]
	assert.Equal(t, 4, apps.Processed)
	assert.Equal(t, 5, apps.Total)
	assert.LessOrEqual(t, second.Domains[models.DomainCallLogs].Processed,
		second.Domains[models.DomainCallLogs].Total)
}

func TestRunJobDomainSubset(t *testing.T) {
	svc, store, pub := newTestService(t)
	path := writeArchive(t, fullReport)
	ctx := context.Background()

	job := Job{ID: "j1", ArchiveSource: path, Domains: []string{models.DomainApps, models.DomainLocations}}
	require.NoError(t, svc.RunJob(ctx, job))

	status, err := pub.Snapshot(ctx, "j1")
	require.NoError(t, err)
	assert.Len(t, status.Domains, 2)

	n, err := store.CountCallLogs(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 0, n, "unrequested domains stay untouched")
}

func TestRunJobUnknownDomain(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.RunJob(context.Background(), Job{ID: "j1", ArchiveSource: "whatever", Domains: []string{"contacts"}})
	assert.ErrorIs(t, err, ErrUnknownDomain)
}

func TestRunJobStagingFailureFailsAllDomains(t *testing.T) {
	svc, _, pub := newTestService(t)
	ctx := context.Background()

	err := svc.RunJob(ctx, Job{ID: "j1", ArchiveSource: filepath.Join(t.TempDir(), "absent.ufdr")})
	require.Error(t, err)
	assert.ErrorIs(t, err, archive.ErrResourceUnavailable)

	status, err := pub.Snapshot(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, status.OverallStatus)
	for domain, d := range status.Domains {
		assert.Equal(t, models.StatusFailed, d.Status, domain)
		assert.NotEmpty(t, d.Error, domain)
	}
}

func TestRunJobMalformedDomainIsIsolated(t *testing.T) {
	// The broken element sits inside an InstantMessage model, after all other
	// content. Only the messages pass fails; everything else keeps its records.
	report := `<project><decodedData>
		<model type="InstalledApplication" id="a1">
			<field name="Identifier"><value>com.whatsapp</value></field>
		</model>
		<model type="Call" id="c1">
			<field name="Source"><value>Phone</value></field>
		</model>
		<model type="InstantMessage" id="m1">
			<field name="Source"><value>WhatsApp</value></field>
			<field name="Body"><value>oops</broken></field>
		</model>
	</decodedData></project>`
	svc, store, pub := newTestService(t)
	path := writeArchive(t, report)
	ctx := context.Background()

	require.NoError(t, svc.RunJob(ctx, Job{ID: "j1", ArchiveSource: path}))

	status, err := pub.Snapshot(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, status.OverallStatus)
	assert.Equal(t, models.StatusFailed, status.Domains[models.DomainMessages].Status)
	assert.Equal(t, models.StatusCompleted, status.Domains[models.DomainApps].Status)
	assert.Equal(t, models.StatusCompleted, status.Domains[models.DomainCallLogs].Status)

	n, err := store.CountApps(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = store.CountCallLogs(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecords(t *testing.T) {
	svc, _, _ := newTestService(t)
	path := writeArchive(t, fullReport)
	ctx := context.Background()
	require.NoError(t, svc.RunJob(ctx, Job{ID: "j1", ArchiveSource: path}))

	records, total, err := svc.Records(ctx, "j1", models.DomainApps, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	apps, ok := records.([]models.App)
	require.True(t, ok)
	assert.Len(t, apps, 2)

	_, _, err = svc.Records(ctx, "j1", "contacts", 10, 0)
	assert.ErrorIs(t, err, ErrUnknownDomain)
}
