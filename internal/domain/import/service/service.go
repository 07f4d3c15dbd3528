// Package service orchestrates the import pipeline: file analysis, format
// and role corrections, preview, and the final commit to the persistence
// collaborator. All inference and transformation lives in the pure packages
// (sniffer, roles, normalizer, validator); the service owns sequencing,
// session state, and telemetry.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/demandsight/demand-planner/internal/domain/import/assist"
	"github.com/demandsight/demand-planner/internal/domain/import/normalizer"
	"github.com/demandsight/demand-planner/internal/domain/import/repository"
	"github.com/demandsight/demand-planner/internal/domain/import/roles"
	"github.com/demandsight/demand-planner/internal/domain/import/session"
	"github.com/demandsight/demand-planner/internal/domain/import/sheet"
	"github.com/demandsight/demand-planner/internal/domain/import/sniffer"
	"github.com/demandsight/demand-planner/internal/domain/import/validator"
	"github.com/demandsight/demand-planner/pkg/metrics"
	"github.com/demandsight/demand-planner/pkg/storage"
)

const (
	defaultMaxInlineBytes = 16 << 20 // beyond this the batch pipeline takes over
	previewSampleRows     = 20
	assistSampleRows      = 30
	maxNumberSamples      = 100
)

// ErrStaleFile is returned when a result arrives for a file the session has
// already replaced. The stale result is discarded, nothing is aborted.
var ErrStaleFile = errors.New("result belongs to a superseded file upload")

// ErrNoSheet is returned when an operation needs an analyzed sheet and the
// session has none.
var ErrNoSheet = errors.New("no file has been analyzed in this session")

// StructuralError carries the role-completeness violations that block a
// commit.
type StructuralError struct {
	Violations []validator.Violation
}

func (e *StructuralError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Message
	}
	return "structural validation failed: " + strings.Join(parts, "; ")
}

// OverwriteRequiredError signals that committing would replace data already
// imported this session and the caller has not confirmed yet. It is a
// decision point, not a failure.
type OverwriteRequiredError struct {
	Check validator.DuplicateCheck
}

func (e *OverwriteRequiredError) Error() string {
	return e.Check.Message
}

// AssistClient is the slice of the assist collaborator the service uses.
type AssistClient interface {
	Enabled() bool
	SuggestRoles(ctx context.Context, csvSample string, headers []string, knownRoles []string) (*assist.Suggestion, error)
}

// ImportService orchestrates analysis and import for wizard sessions.
type ImportService struct {
	repo     repository.ImportRepository
	sessions *session.Store
	assist   AssistClient
	staging  storage.Staging
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer

	maxInlineBytes int64
	dateThreshold  float64
}

// NewImportService creates an import service. maxInlineBytes <= 0 selects the
// default inline threshold; threshold <= 0 the default date-validity one.
func NewImportService(repo repository.ImportRepository, sessions *session.Store, m *metrics.Metrics, logger *slog.Logger, maxInlineBytes int64, threshold float64) *ImportService {
	if maxInlineBytes <= 0 {
		maxInlineBytes = defaultMaxInlineBytes
	}
	return &ImportService{
		repo:           repo,
		sessions:       sessions,
		metrics:        m,
		logger:         logger,
		tracer:         otel.Tracer("import"),
		maxInlineBytes: maxInlineBytes,
		dateThreshold:  threshold,
	}
}

// WithAssistClient adds the optional AI assist collaborator.
func (s *ImportService) WithAssistClient(client AssistClient) *ImportService {
	s.assist = client
	return s
}

// WithStaging adds the staging area for deferred uploads. Without it,
// oversized files are still deferred but not retained.
func (s *ImportService) WithStaging(st storage.Staging) *ImportService {
	s.staging = st
	return s
}

// StartSession opens a new import session for an organization.
func (s *ImportService) StartSession(orgID uuid.UUID, caps roles.OrgCapabilities) *session.Session {
	sess := s.sessions.Create(orgID, caps)
	s.logger.Info("import session started",
		"sessionID", sess.ID,
		"organizationID", orgID,
	)
	return sess
}

// Session returns an existing session.
func (s *ImportService) Session(id uuid.UUID) (*session.Session, error) {
	return s.sessions.Get(id)
}

// AnalyzeResult is the wizard-facing outcome of analyzing an uploaded file.
type AnalyzeResult struct {
	SessionID  uuid.UUID           `json:"sessionId"`
	FileName   string              `json:"fileName"`
	Headers    []string            `json:"headers,omitempty"`
	SampleRows [][]string          `json:"sampleRows,omitempty"`
	Settings   normalizer.Settings `json:"settings"`
	Separator  string              `json:"separator,omitempty"`
	Roles      []string            `json:"roles,omitempty"`
	RangeStart int                 `json:"rangeStart"`
	RangeEnd   int                 `json:"rangeEnd"`

	// Deferred is true when the file exceeded the inline threshold and must
	// go through the external batch pipeline instead. StagedFileID points at
	// the staged copy when a staging area is configured.
	Deferred     bool   `json:"deferred,omitempty"`
	StagedFileID string `json:"stagedFileId,omitempty"`
}

// AnalyzeFile materializes an uploaded file, infers its format settings,
// seeds the role classifier, and installs everything as the session's
// current state. A new upload supersedes any outstanding work for the
// session's previous file via the file token.
func (s *ImportService) AnalyzeFile(ctx context.Context, sessionID uuid.UUID, fileName string, data []byte) (*AnalyzeResult, error) {
	ctx, span := s.tracer.Start(ctx, "import.AnalyzeFile",
		trace.WithAttributes(attribute.String("file.name", fileName), attribute.Int("file.bytes", len(data))))
	defer span.End()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	token := sess.BeginFile(fileName)

	if int64(len(data)) > s.maxInlineBytes {
		s.metrics.DeferredFiles.Inc()
		s.logger.Info("file exceeds inline threshold, deferring to batch pipeline",
			"fileName", fileName,
			"sizeBytes", len(data),
		)
		result := &AnalyzeResult{SessionID: sess.ID, FileName: fileName, Deferred: true}
		if s.staging != nil {
			staged, err := s.staging.Stage(ctx, sess.OrganizationID, fileName, bytes.NewReader(data))
			if err != nil {
				return nil, fmt.Errorf("failed to stage deferred file: %w", err)
			}
			result.StagedFileID = staged.ID.String()
		}
		return result, nil
	}

	separator := sniffer.DetectSeparator(sheet.FirstLine(data))

	var sh *sheet.Sheet
	if strings.HasSuffix(strings.ToLower(fileName), ".xlsx") {
		sh, err = sheet.ParseExcel(bytes.NewReader(data))
	} else {
		sh, err = sheet.ParseCSV(data, separator)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to analyze file: %w", err)
	}

	orientation := sniffer.ProbeOrientation(sh.Headers, sh.FirstColumn())
	if orientation.Transposed {
		sh = sh.Transpose()
	}

	classifier := roles.NewClassifier(sh, sess.Capabilities, orientation.DateFormat, s.dateThreshold)
	classifier.Seed()

	settings := normalizer.Settings{
		Separator:    separator,
		DateFormat:   orientation.DateFormat,
		NumberFormat: sniffer.DetectNumberFormat(numberSamples(sh, classifier.Roles())),
		Transposed:   orientation.Transposed,
	}

	if sess.Stale(token) {
		return nil, ErrStaleFile
	}
	sess.SetSheet(sh, classifier, settings)

	return s.analyzeResult(sess, sh, classifier, settings), nil
}

// numberSamples collects cells for number-format detection. In wide layouts
// the sales figures sit under the date columns; when no date column exists
// yet, unclassified columns are the next best source.
func numberSamples(sh *sheet.Sheet, rs []roles.Role) []string {
	var samples []string
	collect := func(want func(roles.Role) bool) {
		for i, r := range rs {
			if !want(r) {
				continue
			}
			for _, v := range sh.ColumnAt(i) {
				if strings.TrimSpace(v) != "" {
					samples = append(samples, v)
				}
				if len(samples) >= maxNumberSamples {
					return
				}
			}
		}
	}
	collect(func(r roles.Role) bool { return r.Kind == roles.KindDate })
	if len(samples) == 0 {
		collect(func(r roles.Role) bool {
			return r.Kind == roles.KindDimension || r.Kind == roles.KindIgnore
		})
	}
	return samples
}

func (s *ImportService) analyzeResult(sess *session.Session, sh *sheet.Sheet, c *roles.Classifier, st normalizer.Settings) *AnalyzeResult {
	rs := c.Roles()
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = r.String()
	}
	start, end, ok := roles.DateRange(rs)
	if !ok {
		start, end = -1, -1
	}
	return &AnalyzeResult{
		SessionID:  sess.ID,
		FileName:   sess.FileName(),
		Headers:    sh.Headers,
		SampleRows: sh.SampleRows(previewSampleRows),
		Settings:   st,
		Separator:  string(st.Separator),
		Roles:      names,
		RangeStart: start,
		RangeEnd:   end,
	}
}

// ToggleTranspose flips the session's sheet orientation and re-runs
// inference for every format the user has not explicitly overridden.
// Toggling twice restores the original sheet exactly.
func (s *ImportService) ToggleTranspose(sessionID uuid.UUID) (*AnalyzeResult, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	sh, _, settings := sess.Current()
	if sh == nil {
		return nil, ErrNoSheet
	}

	sh = sh.Transpose()
	settings.Transposed = !settings.Transposed

	if !sess.DateFormatSticky() {
		settings.DateFormat = sniffer.DetectDateFormat(sh.Headers)
	}

	classifier := roles.NewClassifier(sh, sess.Capabilities, settings.DateFormat, s.dateThreshold)
	classifier.Seed()

	if !sess.NumberFormatSticky() {
		settings.NumberFormat = sniffer.DetectNumberFormat(numberSamples(sh, classifier.Roles()))
	}

	sess.SetSheet(sh, classifier, settings)
	return s.analyzeResult(sess, sh, classifier, settings), nil
}

// SetDateFormat applies an explicit date-format choice. The override is
// sticky: later auto-detection passes will not revert it.
func (s *ImportService) SetDateFormat(sessionID uuid.UUID, format sniffer.DateFormat) error {
	if !format.Valid() {
		return fmt.Errorf("unknown date format %q", format)
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	_, c, settings := sess.Current()
	if c == nil {
		return ErrNoSheet
	}
	settings.DateFormat = format
	sess.OverrideDateFormat(settings)
	return nil
}

// SetNumberFormat applies an explicit number-format choice, also sticky.
func (s *ImportService) SetNumberFormat(sessionID uuid.UUID, format sniffer.NumberFormat) error {
	if !format.Valid() {
		return fmt.Errorf("unknown number format %q", format)
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	_, c, settings := sess.Current()
	if c == nil {
		return ErrNoSheet
	}
	settings.NumberFormat = format
	sess.OverrideNumberFormat(settings)
	return nil
}

// AssignRole requests a role for a column. Silent reinterpretations are
// applied, logged, and counted; date-validation failures come back with the
// assignment unapplied.
func (s *ImportService) AssignRole(sessionID uuid.UUID, column int, roleName string) (roles.Assignment, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return roles.Assignment{}, err
	}
	sh, c, _ := sess.Current()
	if c == nil {
		return roles.Assignment{}, ErrNoSheet
	}
	if column < 0 || column >= len(sh.Headers) {
		return roles.Assignment{}, fmt.Errorf("column %d out of range", column)
	}

	assignment, err := c.Assign(column, roles.ParseRole(roleName))
	if err != nil {
		return roles.Assignment{}, err
	}
	if assignment.Reinterpreted {
		s.metrics.RoleReinterpretations.Inc()
		s.logger.Warn("role assignment silently reinterpreted",
			"sessionID", sess.ID,
			"column", sh.Headers[column],
			"requested", assignment.Requested.String(),
			"applied", assignment.Applied.String(),
			"reason", assignment.Reason,
		)
	}
	return assignment, nil
}

// SetDateRange re-tags the active period span.
func (s *ImportService) SetDateRange(sessionID uuid.UUID, start, end int) error {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	_, c, _ := sess.Current()
	if c == nil {
		return ErrNoSheet
	}
	return c.SetDateRange(start, end)
}

// ApplyAssist asks the AI collaborator for a candidate role assignment and
// applies it through the same classifier rules as manual edits. If the
// session has moved on to a newer file by the time the response arrives, the
// response is discarded.
func (s *ImportService) ApplyAssist(ctx context.Context, sessionID uuid.UUID) (*AnalyzeResult, error) {
	if s.assist == nil || !s.assist.Enabled() {
		return nil, assist.ErrDisabled
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	sh, c, settings := sess.Current()
	if c == nil {
		return nil, ErrNoSheet
	}

	token := sess.Token()
	sample := csvSample(sh, settings.Separator, assistSampleRows)
	known := make([]string, 0, len(sniffer.DateFormats))
	for _, f := range sniffer.DateFormats {
		known = append(known, string(f))
	}

	suggestion, err := s.assist.SuggestRoles(ctx, sample, sh.Headers, known)
	if err != nil {
		return nil, fmt.Errorf("assist call failed: %w", err)
	}

	if sess.Stale(token) {
		s.logger.Info("discarding stale assist response", "sessionID", sess.ID)
		return nil, ErrStaleFile
	}

	if suggestion.DateFormat != "" && !sess.DateFormatSticky() {
		if f := sniffer.DateFormat(suggestion.DateFormat); f.Valid() {
			settings.DateFormat = f
			sess.SetSettings(settings)
		}
	}
	if suggestion.NumberFormat != "" && !sess.NumberFormatSticky() {
		if f := sniffer.NumberFormat(suggestion.NumberFormat); f.Valid() {
			settings.NumberFormat = f
			sess.SetSettings(settings)
		}
	}

	for i, header := range sh.Headers {
		name, ok := suggestion.ColumnRoles[header]
		if !ok {
			continue
		}
		if _, err := s.AssignRole(sessionID, i, name); err != nil {
			s.logger.Warn("assist-suggested role rejected",
				"sessionID", sess.ID,
				"column", header,
				"role", name,
				"error", err,
			)
		}
	}

	_, c, settings = sess.Current()
	return s.analyzeResult(sess, sh, c, settings), nil
}

// PreviewResult is a bounded normalization pass plus everything that would
// block a commit.
type PreviewResult struct {
	Records      []normalizer.Record     `json:"records"`
	TotalRecords int                     `json:"totalRecords"`
	Issues       []normalizer.Issue      `json:"issues,omitempty"`
	Violations   []validator.Violation   `json:"violations,omitempty"`
	Dimensions   normalizer.DimensionSet `json:"dimensions"`
}

// Preview runs the full pipeline without persisting, returning up to limit
// records. Structural violations are reported, not fatal, so the wizard can
// show the preview and what still needs fixing side by side.
func (s *ImportService) Preview(sessionID uuid.UUID, limit int) (*PreviewResult, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	sh, c, settings := sess.Current()
	if c == nil {
		return nil, ErrNoSheet
	}

	rs := c.Roles()
	start, end, _ := roles.DateRange(rs)
	result := normalizer.Normalize(sh, rs, start, end, settings)

	preview := &PreviewResult{
		TotalRecords: len(result.Records),
		Issues:       result.Issues,
		Violations:   validator.ValidateRoles(rs, sess.Capabilities),
		Dimensions:   normalizer.ExtractDimensions(sh, rs),
	}
	if limit <= 0 || limit > len(result.Records) {
		limit = len(result.Records)
	}
	preview.Records = result.Records[:limit]
	return preview, nil
}

// CommitOptions control a commit attempt.
type CommitOptions struct {
	// ConfirmOverwrite acknowledges an overwrite confirmation returned by a
	// previous attempt.
	ConfirmOverwrite bool
	// DivisionName names the division selected out of band, for
	// division-level imports without a division column.
	DivisionName string
}

// Commit validates, normalizes, and hands the dataset to the persistence
// collaborator. Duplicate imports surface as OverwriteRequiredError until
// confirmed, structural violations as StructuralError. Normalization runs
// before any persistence call, so a collaborator failure cannot leave the
// session bookkeeping claiming an import that never happened.
func (s *ImportService) Commit(ctx context.Context, sessionID uuid.UUID, opts CommitOptions) (*repository.DatasetSummary, error) {
	ctx, span := s.tracer.Start(ctx, "import.Commit")
	defer span.End()

	started := time.Now()
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	sh, c, settings := sess.Current()
	if c == nil {
		return nil, ErrNoSheet
	}

	rs := c.Roles()
	if violations := validator.ValidateRoles(rs, sess.Capabilities); len(violations) > 0 {
		s.metrics.ImportsTotal.WithLabelValues("invalid").Inc()
		return nil, &StructuralError{Violations: violations}
	}

	start, end, ok := roles.DateRange(rs)
	if !ok {
		s.metrics.ImportsTotal.WithLabelValues("invalid").Inc()
		return nil, &StructuralError{Violations: []validator.Violation{{
			Role:    roles.Date().String(),
			Message: "no columns carry the date role; select the period range first",
		}}}
	}

	result := normalizer.Normalize(sh, rs, start, end, settings)
	dims := normalizer.ExtractDimensions(sh, rs)

	incoming := validator.ImportedCsvRecord{
		FileName:     sess.FileName(),
		Divisions:    dims.Divisions,
		Clusters:     dims.Clusters,
		DivisionName: opts.DivisionName,
	}

	multiSheet := sess.Capabilities.ImportLevel == roles.ImportLevelDivision
	check := validator.CheckDuplicates(sess.Imported(), incoming, multiSheet)
	if check.RequiresConfirmation && !opts.ConfirmOverwrite {
		s.metrics.ImportsTotal.WithLabelValues("needs_confirmation").Inc()
		return nil, &OverwriteRequiredError{Check: check}
	}
	if check.RequiresConfirmation {
		if multiSheet && len(check.ConflictingDivisions) > 0 {
			if err := s.repo.DeleteDatasetsForDivisions(ctx, sess.OrganizationID, check.ConflictingDivisions); err != nil {
				s.metrics.ImportsTotal.WithLabelValues("failed").Inc()
				return nil, fmt.Errorf("failed to replace division data: %w", err)
			}
		} else if !multiSheet {
			if err := s.repo.DeleteDatasetsForOrganization(ctx, sess.OrganizationID); err != nil {
				s.metrics.ImportsTotal.WithLabelValues("failed").Inc()
				return nil, fmt.Errorf("failed to replace organization data: %w", err)
			}
		}
		sess.RemoveImported(check.Supersedes)
	}

	summary, err := s.repo.SaveDataset(ctx, sess.OrganizationID, incoming.FileName, result.Records, dims)
	if err != nil {
		s.metrics.ImportsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to persist dataset: %w", err)
	}

	sess.AppendImported(incoming)
	s.metrics.ImportsTotal.WithLabelValues("succeeded").Inc()
	s.metrics.RecordsEmitted.Add(float64(len(result.Records)))
	s.metrics.ImportDuration.Observe(time.Since(started).Seconds())

	span.SetAttributes(
		attribute.Int("records", len(result.Records)),
		attribute.Int("skus", summary.SKUCount),
	)
	s.logger.Info("import committed",
		"sessionID", sess.ID,
		"datasetID", summary.DatasetID,
		"records", len(result.Records),
		"skus", summary.SKUCount,
		"periods", summary.TotalPeriods,
	)
	return summary, nil
}

// csvSample renders the first n rows back to CSV text for the assist call.
func csvSample(sh *sheet.Sheet, separator rune, n int) string {
	if separator == 0 {
		separator = ','
	}
	sep := string(separator)
	var b strings.Builder
	b.WriteString(strings.Join(sh.Headers, sep))
	b.WriteByte('\n')
	for _, row := range sh.SampleRows(n) {
		b.WriteString(strings.Join(row, sep))
		b.WriteByte('\n')
	}
	return b.String()
}
