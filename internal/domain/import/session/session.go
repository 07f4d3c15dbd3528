// Package session holds the per-wizard-session import state: the sheet under
// inspection, its classifier, format settings, sticky user overrides, the
// list of already-imported files, and the monotonically increasing file token
// that lets the service discard stale asynchronous results.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/demandsight/demand-planner/internal/domain/import/normalizer"
	"github.com/demandsight/demand-planner/internal/domain/import/roles"
	"github.com/demandsight/demand-planner/internal/domain/import/sheet"
	"github.com/demandsight/demand-planner/internal/domain/import/validator"
)

var ErrNotFound = errors.New("import session not found")

// Session is the state of one setup-wizard import session. Each uploaded file
// resets and owns its own preview/role/range state before any asynchronous
// step begins; the file token is how stale responses for a previous file are
// recognized and dropped.
type Session struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Capabilities   roles.OrgCapabilities

	mu sync.Mutex

	fileToken  uint64
	fileName   string
	sheet      *sheet.Sheet
	classifier *roles.Classifier
	settings   normalizer.Settings

	// Explicit user intent is sticky: once a format is overridden, later
	// auto-detection passes must not silently revert it.
	dateFormatOverridden   bool
	numberFormatOverridden bool

	imported   []validator.ImportedCsvRecord
	lastActive time.Time
}

// Token returns the current file token. Asynchronous work captures it before
// suspending and compares on resume.
func (s *Session) Token() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileToken
}

// BeginFile resets all per-file state for a newly uploaded file and returns
// the new token. Any in-flight work keyed to an older token becomes stale.
func (s *Session) BeginFile(fileName string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileToken++
	s.fileName = fileName
	s.sheet = nil
	s.classifier = nil
	s.settings = normalizer.Settings{}
	s.dateFormatOverridden = false
	s.numberFormatOverridden = false
	s.touch()
	return s.fileToken
}

// Stale reports whether token belongs to a superseded file.
func (s *Session) Stale(token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return token != s.fileToken
}

// SetSheet installs the materialized sheet, classifier, and initial settings
// for the current file.
func (s *Session) SetSheet(sh *sheet.Sheet, c *roles.Classifier, st normalizer.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheet = sh
	s.classifier = c
	s.settings = st
	s.touch()
}

// Current returns the session's sheet, classifier, and settings. The sheet is
// nil until a file has been analyzed.
func (s *Session) Current() (*sheet.Sheet, *roles.Classifier, normalizer.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sheet, s.classifier, s.settings
}

// FileName returns the name of the file currently under inspection.
func (s *Session) FileName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileName
}

// OverrideDateFormat records an explicit date format choice and disables
// further auto-detection of it for this file.
func (s *Session) OverrideDateFormat(st normalizer.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = st
	s.dateFormatOverridden = true
	if s.classifier != nil {
		s.classifier.SetDateFormat(st.DateFormat)
	}
	s.touch()
}

// OverrideNumberFormat records an explicit number format choice.
func (s *Session) OverrideNumberFormat(st normalizer.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = st
	s.numberFormatOverridden = true
	s.touch()
}

// DateFormatSticky reports whether date format auto-detection is disabled.
func (s *Session) DateFormatSticky() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dateFormatOverridden
}

// NumberFormatSticky reports whether number format auto-detection is disabled.
func (s *Session) NumberFormatSticky() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numberFormatOverridden
}

// SetSettings replaces the format snapshot without marking anything sticky
// (used when a re-detection pass refreshes non-overridden fields).
func (s *Session) SetSettings(st normalizer.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = st
	if s.classifier != nil {
		s.classifier.SetDateFormat(st.DateFormat)
	}
	s.touch()
}

// Imported returns a copy of the session's import bookkeeping, in append
// order. Entries are never reordered or mutated in place.
func (s *Session) Imported() []validator.ImportedCsvRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]validator.ImportedCsvRecord(nil), s.imported...)
}

// AppendImported records a completed import.
func (s *Session) AppendImported(rec validator.ImportedCsvRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imported = append(s.imported, rec)
	s.touch()
}

// RemoveImported drops the entries whose file names appear in names,
// preserving the order of the rest. Used when a confirmed overwrite
// supersedes earlier imports.
func (s *Session) RemoveImported(names []string) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.imported[:0]
	for _, rec := range s.imported {
		if !drop[rec.FileName] {
			kept = append(kept, rec)
		}
	}
	s.imported = kept
	s.touch()
}

// touch must be called with the lock held.
func (s *Session) touch() {
	s.lastActive = time.Now()
}

// Store keeps live sessions in memory. Sessions are wizard-scoped and cheap;
// a periodic sweep expires the ones idle past the TTL.
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	ttl      time.Duration
}

// NewStore creates a session store with the given idle TTL.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[uuid.UUID]*Session),
		ttl:      ttl,
	}
}

// Create starts a new session for the organization.
func (st *Store) Create(orgID uuid.UUID, caps roles.OrgCapabilities) *Session {
	s := &Session{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Capabilities:   caps,
		lastActive:     time.Now(),
	}
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

// Get returns the session by id.
func (st *Store) Get(id uuid.UUID) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete removes a session.
func (st *Store) Delete(id uuid.UUID) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// Sweep removes sessions idle past the TTL and returns how many were dropped.
func (st *Store) Sweep() int {
	cutoff := time.Now().Add(-st.ttl)
	st.mu.Lock()
	defer st.mu.Unlock()
	removed := 0
	for id, s := range st.sessions {
		s.mu.Lock()
		idle := s.lastActive.Before(cutoff)
		s.mu.Unlock()
		if idle {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
