// Package wizard holds the onboarding wizard's per-session state: validated
// step fragments, forward-only progression, pending bill selections and the
// dirty flag that arms a partial flush.
package wizard

import (
	"sync"
	"time"

	"github.com/Lllllllleong/solarleadcapture/internal/documents"
	"github.com/Lllllllleong/solarleadcapture/internal/errs"
)

// MaxBills is the most bills a visitor may attach during onboarding.
const MaxBills = 3

// PendingDocument is a selected bill awaiting upload. Outcome is nil until an
// upload has been attempted.
type PendingDocument struct {
	File    documents.File
	Outcome *documents.Outcome
}

// DocumentMeta describes a pending document without its bytes.
type DocumentMeta struct {
	Index    int    `json:"index"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

// Rejection is a selected file that was not accepted.
type Rejection struct {
	FileName string
	Err      error
}

// Snapshot is a point-in-time copy of the session used to compose events.
type Snapshot struct {
	SessionID     string
	Owner         string
	CurrentStep   int
	LastSubmitted int
	Data          Fragment
	// Cleared lists declared fields of submitted steps that are now empty.
	Cleared       []string
	Documents     []DocumentMeta
}

// Progress is the client-facing view of a session.
type Progress struct {
	SessionID   string         `json:"sessionId"`
	CurrentStep int            `json:"currentStep"`
	TotalSteps  int            `json:"totalSteps"`
	StepID      StepID         `json:"stepId"`
	Title       string         `json:"title"`
	Completed   bool           `json:"completed"`
	Data        Fragment       `json:"data"`
	Documents   []DocumentMeta `json:"documents"`
}

// Session is one visitor's pass through the wizard. All methods are safe for
// concurrent use.
type Session struct {
	mu sync.Mutex

	id         string
	owner      string
	steps      []StepDefinition
	fragments  map[StepID]Fragment
	current    int
	submitted  int
	dirty      bool
	disarmed   bool
	finalizing bool
	completed  bool
	documents  []PendingDocument
	lastActive time.Time
}

func newSession(id, owner string, steps []StepDefinition, now time.Time) *Session {
	return &Session{
		id:         id,
		owner:      owner,
		steps:      steps,
		fragments:  make(map[StepID]Fragment),
		current:    1,
		lastActive: now,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Owner returns the identity the session belongs to.
func (s *Session) Owner() string { return s.owner }

func (s *Session) step(id StepID) (StepDefinition, bool) {
	for _, d := range s.steps {
		if d.ID == id {
			return d, true
		}
	}
	return StepDefinition{}, false
}

func (s *Session) total() int { return len(s.steps) }

// checkEnterable reports why step def cannot be submitted right now, if it
// cannot. Callers hold s.mu.
func (s *Session) checkEnterable(def StepDefinition) error {
	if s.completed {
		return errs.Newf(errs.AlreadyCompleted, "onboarding has already been completed")
	}
	if def.Number > s.current {
		return errs.Newf(errs.StepOutOfOrder, "step %s is not available yet; current step is %d", def.ID, s.current)
	}
	return nil
}

// advance moves past step number n, never beyond the final review step, and
// arms a partial flush. Callers hold s.mu.
func (s *Session) advance(n int) {
	next := n + 1
	if next > s.total() {
		next = s.total()
	}
	s.current = next
	s.submitted = n
	if !s.disarmed {
		s.dirty = true
	}
}

// SubmitStep validates f against the step's schema and, on success, stores
// the declared fields and moves to the next step. On failure nothing changes.
func (s *Session) SubmitStep(id StepID, f Fragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.step(id)
	if !ok {
		return errs.Newf(errs.NotFound, "unknown step %q", id)
	}
	if err := s.checkEnterable(def); err != nil {
		return err
	}
	if def.Number == s.total() {
		return errs.Newf(errs.StepOutOfOrder, "the review step is completed by submitting the application")
	}

	kept := def.keep(f)
	if def.Validate != nil {
		if fe := def.Validate(kept); len(fe) > 0 {
			return errs.Validation(fe)
		}
	}
	s.fragments[id] = kept
	s.advance(def.Number)
	return nil
}

// SelectDocuments submits the bill selection step. Files failing the upload
// policy, and files beyond MaxBills, are rejected individually; the rest
// replace any earlier selection.
func (s *Session) SelectDocuments(files []documents.File) ([]Rejection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.step(StepDocuments)
	if !ok {
		return nil, errs.Newf(errs.NotFound, "this wizard has no document step")
	}
	if err := s.checkEnterable(def); err != nil {
		return nil, err
	}

	var (
		accepted []PendingDocument
		rejected []Rejection
	)
	for _, f := range files {
		if err := documents.Validate(f); err != nil {
			rejected = append(rejected, Rejection{FileName: f.Name, Err: err})
			continue
		}
		if len(accepted) == MaxBills {
			rejected = append(rejected, Rejection{
				FileName: f.Name,
				Err:      errs.Newf(errs.ValidationFailed, "%s: a maximum of %d bills may be uploaded", f.Name, MaxBills),
			})
			continue
		}
		accepted = append(accepted, PendingDocument{File: f})
	}
	s.documents = accepted
	s.advance(def.Number)
	return rejected, nil
}

// GoBack returns to the previous step without discarding any data.
func (s *Session) GoBack() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current > 1 {
		s.current--
	}
	return s.current
}

// MergedData returns the union of every stored fragment.
func (s *Session) MergedData() Fragment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergedLocked()
}

func (s *Session) mergedLocked() Fragment {
	out := make(Fragment)
	for _, def := range s.steps {
		for k, v := range s.fragments[def.ID] {
			if v != "" {
				out[k] = v
			}
		}
	}
	return out
}

func (s *Session) clearedLocked(merged Fragment) []string {
	var out []string
	for _, def := range s.steps {
		if _, ok := s.fragments[def.ID]; !ok {
			continue
		}
		for _, name := range def.Fields {
			if merged[name] == "" {
				out = append(out, name)
			}
		}
	}
	return out
}

func (s *Session) metaLocked() []DocumentMeta {
	metas := make([]DocumentMeta, 0, len(s.documents))
	for i, d := range s.documents {
		metas = append(metas, DocumentMeta{
			Index:    i,
			FileName: d.File.Name,
			FileSize: d.File.Size,
			MimeType: d.File.MediaType,
		})
	}
	return metas
}

func (s *Session) snapshotLocked() Snapshot {
	merged := s.mergedLocked()
	return Snapshot{
		SessionID:     s.id,
		Owner:         s.owner,
		CurrentStep:   s.current,
		LastSubmitted: s.submitted,
		Data:          merged,
		Cleared:       s.clearedLocked(merged),
		Documents:     s.metaLocked(),
	}
}

// Progress reports where the session stands.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Progress{
		SessionID:   s.id,
		CurrentStep: s.current,
		TotalSteps:  s.total(),
		Completed:   s.completed,
		Data:        s.mergedLocked(),
		Documents:   s.metaLocked(),
	}
	if s.current >= 1 && s.current <= s.total() {
		p.StepID = s.steps[s.current-1].ID
		p.Title = s.steps[s.current-1].Title
	}
	return p
}

// Dirty reports whether data changed since the last flush.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// TakeFlush returns a snapshot and clears the dirty flag when a partial flush
// is due. No flush is due without an owner, once finalization has begun, or
// when nothing changed since the last flush.
func (s *Session) TakeFlush() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == "" || s.disarmed || s.completed || !s.dirty {
		return Snapshot{}, false
	}
	s.dirty = false
	return s.snapshotLocked(), true
}

// BeginFinalize claims the session for a single submission. Every step with
// a schema is revalidated first; a validation failure leaves the session
// untouched and still flushable. On success partial flushes are disarmed
// permanently and the data to finalize is returned. A second call while one
// is in flight is refused until AbortFinalize or MarkCompleted.
func (s *Session) BeginFinalize() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed {
		return Snapshot{}, errs.Newf(errs.AlreadyCompleted, "onboarding has already been completed")
	}
	if s.finalizing {
		return Snapshot{}, errs.Newf(errs.SubmissionInProgress, "this application is already being submitted")
	}
	if err := s.revalidateLocked(); err != nil {
		return Snapshot{}, err
	}
	s.finalizing = true
	s.disarmed = true
	s.dirty = false
	return s.snapshotLocked(), nil
}

// AbortFinalize releases the claim taken by BeginFinalize so the submission
// can be retried. Partial flushes stay disarmed.
func (s *Session) AbortFinalize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizing = false
}

// revalidateLocked checks every step that has a schema against its stored
// fragment. Missing fragments fail as if submitted empty.
func (s *Session) revalidateLocked() error {
	fields := errs.FieldErrors{}
	for _, def := range s.steps {
		if def.Validate == nil {
			continue
		}
		frag := s.fragments[def.ID]
		if frag == nil {
			frag = Fragment{}
		}
		for k, v := range def.Validate(frag) {
			fields[k] = v
		}
	}
	if len(fields) > 0 {
		return errs.Validation(fields)
	}
	return nil
}

// Documents returns a copy of the pending documents.
func (s *Session) Documents() []PendingDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PendingDocument, len(s.documents))
	copy(out, s.documents)
	return out
}

// RecordOutcome stores the upload result of pending document i.
func (s *Session) RecordOutcome(i int, o documents.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.documents) {
		return
	}
	s.documents[i].Outcome = &o
}

// MarkCompleted sets the write-once completed flag.
func (s *Session) MarkCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = true
	s.finalizing = false
	s.disarmed = true
	s.dirty = false
}

// Completed reports whether finalization succeeded.
func (s *Session) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}
