package calls

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo keeps the authoritative record set in a single in-process map
// and serializes all writes through one mutex, which gives the
// single-writer-per-id discipline the engine relies on.
//
// With a FilePath configured, the full record set is mirrored to a JSON file
// after every mutation so a restart does not lose state. The file is a
// mirror, not a source of truth: it is read once at construction.
type MemoryRepo struct {
	mu    sync.Mutex
	calls map[string]*Call

	// FilePath enables the JSON mirror when non-empty.
	FilePath string

	Observer TransitionObserver

	clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{calls: make(map[string]*Call), clock: time.Now}
}

// NewFileRepo builds a MemoryRepo mirrored to path, loading any existing
// snapshot first.
func NewFileRepo(path string) (*MemoryRepo, error) {
	r := NewMemoryRepo()
	r.FilePath = path
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *MemoryRepo) load() error {
	raw, err := os.ReadFile(r.FilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	var recs []Call
	if err := json.Unmarshal(raw, &recs); err != nil {
		return err
	}
	for i := range recs {
		c := recs[i]
		r.calls[c.ID] = &c
	}
	return nil
}

// persist writes the mirror file. Callers must hold the mutex.
func (r *MemoryRepo) persist() {
	if r.FilePath == "" {
		return
	}
	recs := make([]Call, 0, len(r.calls))
	for _, c := range r.calls {
		recs = append(recs, *c)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })

	raw, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		slog.Error("call store mirror marshal failed", "err", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(r.FilePath), 0o755); err != nil {
		slog.Error("call store mirror mkdir failed", "err", err)
		return
	}
	if err := os.WriteFile(r.FilePath, raw, 0o644); err != nil {
		slog.Error("call store mirror write failed", "err", err)
	}
}

func (r *MemoryRepo) Create(ctx context.Context, res Reservation) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := res.RequestID
	if id == "" {
		id = uuid.NewString()
	}
	if existing, ok := r.calls[id]; ok {
		return cloneCall(existing), nil
	}

	now := r.clock().UTC()
	res.RequestID = id
	c := &Call{
		ID:          id,
		Reservation: res,
		Status:      StatusInit,
		Transcript:  []TranscriptEntry{{At: now, Speaker: SpeakerSystem, Text: "Call created"}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.calls[id] = c
	r.persist()
	return cloneCall(c), nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.calls[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	return cloneCall(c), nil
}

func (r *MemoryRepo) List(ctx context.Context) ([]Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Call, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, cloneCall(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, id string, status CallStatus) error {
	return r.setStatus(ctx, id, status, false)
}

// ForceStatus bypasses transition validation. Reserved for the stale
// sweeper's forced terminal failure.
func (r *MemoryRepo) ForceStatus(ctx context.Context, id string, status CallStatus) error {
	return r.setStatus(ctx, id, status, true)
}

func (r *MemoryRepo) setStatus(ctx context.Context, id string, status CallStatus, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.calls[id]
	if !ok {
		return nil
	}
	if !force && !CanTransition(c.Status, status) {
		slog.Warn("call status transition blocked", "call_id", id, "from", c.Status, "to", status)
		if r.Observer != nil {
			r.Observer.TransitionBlocked(ctx, id, c.Status, status)
		}
		return nil
	}
	c.Status = status
	c.UpdatedAt = r.clock().UTC()
	r.persist()
	return nil
}

func (r *MemoryRepo) AppendTranscript(ctx context.Context, id string, speaker Speaker, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.calls[id]
	if !ok {
		return nil
	}
	now := r.clock().UTC()

	var last *TranscriptEntry
	if n := len(c.Transcript); n > 0 {
		last = &c.Transcript[n-1]
	}
	if shouldDropTranscript(last, speaker, text, now) {
		return nil
	}

	c.Transcript = append(c.Transcript, TranscriptEntry{At: now, Speaker: speaker, Text: text})
	c.UpdatedAt = now
	r.persist()
	return nil
}

func (r *MemoryRepo) SetOutcome(ctx context.Context, id string, out Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.calls[id]
	if !ok {
		return nil
	}
	o := out
	c.Outcome = &o
	c.UpdatedAt = r.clock().UTC()
	r.persist()
	return nil
}

func (r *MemoryRepo) UpdateReservation(ctx context.Context, id string, patch ReservationPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.calls[id]
	if !ok {
		return nil
	}
	c.Reservation = patch.Apply(c.Reservation)
	c.UpdatedAt = r.clock().UTC()
	r.persist()
	return nil
}

func (r *MemoryRepo) AttachSessionRef(ctx context.Context, id string, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.calls[id]
	if !ok {
		return nil
	}
	c.SessionRef = ref
	c.UpdatedAt = r.clock().UTC()
	r.persist()
	return nil
}

// SetClock overrides the repo clock for deterministic tests.
func (r *MemoryRepo) SetClock(clock func() time.Time) { r.clock = clock }

// SetObserver installs the blocked-transition observer.
func (r *MemoryRepo) SetObserver(obs TransitionObserver) { r.Observer = obs }

func cloneCall(c *Call) Call {
	out := *c
	out.Transcript = make([]TranscriptEntry, len(c.Transcript))
	copy(out.Transcript, c.Transcript)
	if c.Outcome != nil {
		o := *c.Outcome
		out.Outcome = &o
	}
	if c.Reservation.Script != nil {
		s := *c.Reservation.Script
		out.Reservation.Script = &s
	}
	return out
}
