// Package e2etest provides end-to-end integration tests for import flows.
package e2etest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demandsight/demand-planner/internal/domain/import/normalizer"
	"github.com/demandsight/demand-planner/internal/domain/import/repository"
	"github.com/demandsight/demand-planner/internal/domain/import/roles"
	"github.com/demandsight/demand-planner/internal/domain/import/service"
	"github.com/demandsight/demand-planner/internal/domain/import/session"
	"github.com/demandsight/demand-planner/internal/domain/import/sniffer"
	"github.com/demandsight/demand-planner/pkg/metrics"
)

type memoryRepo struct {
	datasets map[uuid.UUID][]normalizer.Record
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{datasets: map[uuid.UUID][]normalizer.Record{}}
}

func (m *memoryRepo) SaveDataset(_ context.Context, _ uuid.UUID, _ string, records []normalizer.Record, _ normalizer.DimensionSet) (*repository.DatasetSummary, error) {
	skus, start, end, periods := repository.Summarize(records)
	id := uuid.New()
	m.datasets[id] = records
	return &repository.DatasetSummary{
		DatasetID: id, SKUCount: skus, DateStart: start, DateEnd: end, TotalPeriods: periods,
	}, nil
}

func (m *memoryRepo) GetDataset(context.Context, uuid.UUID) (*repository.Dataset, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *memoryRepo) DeleteDatasetsForDivisions(context.Context, uuid.UUID, []string) error {
	return nil
}

func (m *memoryRepo) DeleteDatasetsForOrganization(context.Context, uuid.UUID) error {
	return nil
}

func newWizard(t *testing.T, caps roles.OrgCapabilities) (*service.ImportService, *memoryRepo, *session.Session) {
	t.Helper()
	repo := newMemoryRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewImportService(repo, session.NewStore(0), metrics.New(prometheus.NewRegistry()), logger, 0, 0)
	sess := svc.StartSession(uuid.New(), caps)
	return svc, repo, sess
}

// TestEuropeanERPExport runs the whole wizard against a semicolon-delimited
// export with European number formatting, the shape a German or Portuguese
// ERP typically produces.
func TestEuropeanERPExport(t *testing.T) {
	data := []byte("Artikel;Bezeichnung;Division;01/01/2024;01/02/2024\n" +
		"A-100;Ventil;Nord;1.250,50;980,00\n" +
		"A-200;Pumpe;Süd;2.500,00;1.100,25\n")

	caps := roles.OrgCapabilities{
		HasMultipleDivisions: true,
		ImportLevel:          roles.ImportLevelCompany,
		DivisionCSVType:      roles.DivisionCSVWithColumn,
	}
	svc, repo, sess := newWizard(t, caps)

	result, err := svc.AnalyzeFile(context.Background(), sess.ID, "erp_export.csv", data)
	require.NoError(t, err)

	assert.Equal(t, ";", result.Separator)
	assert.Equal(t, sniffer.DateDMYSlash, result.Settings.DateFormat)
	assert.Equal(t, sniffer.NumEU, result.Settings.NumberFormat)
	assert.Equal(t, []string{"materialCode", "description", "division", "date", "date"}, result.Roles)

	summary, err := svc.Commit(context.Background(), sess.ID, service.CommitOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.SKUCount)
	assert.Equal(t, 2, summary.TotalPeriods)

	records := repo.datasets[summary.DatasetID]
	require.Len(t, records, 4)
	assert.Equal(t, 1250.5, records[0].Sales)
	assert.Equal(t, "2024-01-01", records[0].Date)
	assert.Equal(t, "Nord", records[0].Division)
}

// TestTransposedExportRoundTrip covers a sheet with periods down the first
// column: the probe flips it, and a user who disagrees can flip it back and
// forth without losing data.
func TestTransposedExportRoundTrip(t *testing.T) {
	data := []byte("Periode,A-100,A-200\n2024-01-01,10,20\n2024-02-01,30,40\n2024-03-01,50,60\n")

	caps := roles.OrgCapabilities{ImportLevel: roles.ImportLevelCompany}
	svc, _, sess := newWizard(t, caps)

	result, err := svc.AnalyzeFile(context.Background(), sess.ID, "flipped.csv", data)
	require.NoError(t, err)
	require.True(t, result.Settings.Transposed)
	assert.Equal(t, sniffer.DateYMDDash, result.Settings.DateFormat)

	once, err := svc.ToggleTranspose(sess.ID)
	require.NoError(t, err)
	twice, err := svc.ToggleTranspose(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Headers, twice.Headers)
	assert.NotEqual(t, result.Headers, once.Headers)

	summary, err := svc.Commit(context.Background(), sess.ID, service.CommitOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.SKUCount)
	assert.Equal(t, 3, summary.TotalPeriods)
	assert.Equal(t, "2024-01-01", summary.DateStart)
	assert.Equal(t, "2024-03-01", summary.DateEnd)
}

// TestDivisionWizardCorrections walks the correction loop: the heuristics
// miss a column, the user fixes roles and narrows the period range, and the
// commit reflects the corrections.
func TestDivisionWizardCorrections(t *testing.T) {
	data := []byte("SKU,Name,Region,01/2024,02/2024,03/2024,Notes\n" +
		"A-1,Widget,North,10,20,30,check\n" +
		"A-2,Gadget,South,40,50,60,\n")

	caps := roles.OrgCapabilities{
		HasMultipleDivisions: true,
		ImportLevel:          roles.ImportLevelCompany,
		DivisionCSVType:      roles.DivisionCSVWithColumn,
	}
	svc, repo, sess := newWizard(t, caps)

	result, err := svc.AnalyzeFile(context.Background(), sess.ID, "regions.csv", data)
	require.NoError(t, err)
	assert.Equal(t, "ignore", result.Roles[2], "Region header is not matched by the division heuristic")

	// Commit without a division column fails structurally.
	_, err = svc.Commit(context.Background(), sess.ID, service.CommitOptions{})
	var structural *service.StructuralError
	require.ErrorAs(t, err, &structural)

	// User assigns the role and trims the range to the first two periods.
	_, err = svc.AssignRole(sess.ID, 2, "division")
	require.NoError(t, err)
	require.NoError(t, svc.SetDateRange(sess.ID, 3, 4))

	summary, err := svc.Commit(context.Background(), sess.ID, service.CommitOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalPeriods)

	for _, rec := range repo.datasets[summary.DatasetID] {
		assert.NotEmpty(t, rec.Division)
		assert.NotEqual(t, "2024-03-01", rec.Date)
	}
}
