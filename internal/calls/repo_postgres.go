package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reservation-caller/pkg/utils"

	"github.com/google/uuid"
)

// PostgresRepo persists calls in a single table with JSONB payload columns.
//
// Concurrency: every read-modify-write (status validation, transcript append,
// reservation patch) runs inside a transaction with a FOR UPDATE row lock, so
// the transition check always sees the persisted status, never a stale
// in-memory copy.
type PostgresRepo struct {
	db *sql.DB

	Observer TransitionObserver

	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

// SetObserver installs the blocked-transition observer.
func (r *PostgresRepo) SetObserver(obs TransitionObserver) { r.Observer = obs }

// EnsureSchema creates the calls table if it does not exist yet.
func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS calls (
    id          TEXT PRIMARY KEY,
    reservation JSONB NOT NULL,
    status      TEXT NOT NULL,
    transcript  JSONB NOT NULL DEFAULT '[]'::jsonb,
    outcome     JSONB,
    session_ref TEXT,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
)
`
	if _, err := r.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("calls schema: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Create(ctx context.Context, res Reservation) (Call, error) {
	id := res.RequestID
	if id == "" {
		id = uuid.NewString()
	}
	res.RequestID = id

	now := r.clock().UTC()
	c := Call{
		ID:          id,
		Reservation: res,
		Status:      StatusInit,
		Transcript:  []TranscriptEntry{{At: now, Speaker: SpeakerSystem, Text: "Call created"}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	resJSON, err := json.Marshal(c.Reservation)
	if err != nil {
		return Call{}, err
	}
	trJSON, err := json.Marshal(c.Transcript)
	if err != nil {
		return Call{}, err
	}

	// ON CONFLICT DO NOTHING makes creation idempotent on the request id;
	// the follow-up read returns whichever record won.
	const q = `
INSERT INTO calls (id, reservation, status, transcript, outcome, session_ref, created_at, updated_at)
VALUES ($1, $2, $3, $4, NULL, NULL, $5, $5)
ON CONFLICT (id) DO NOTHING
`
	if _, err := r.db.ExecContext(ctx, q, c.ID, resJSON, c.Status, trJSON, now); err != nil {
		return Call{}, err
	}
	return r.Get(ctx, id)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Call, error) {
	const q = `
SELECT id, reservation, status, transcript, outcome, session_ref, created_at, updated_at
FROM calls
WHERE id = $1
`
	return scanCall(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) List(ctx context.Context) ([]Call, error) {
	const q = `
SELECT id, reservation, status, transcript, outcome, session_ref, created_at, updated_at
FROM calls
ORDER BY created_at DESC
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id string, status CallStatus) error {
	return r.setStatus(ctx, id, status, false)
}

// ForceStatus bypasses transition validation. Reserved for the stale
// sweeper's forced terminal failure.
func (r *PostgresRepo) ForceStatus(ctx context.Context, id string, status CallStatus) error {
	return r.setStatus(ctx, id, status, true)
}

func (r *PostgresRepo) setStatus(ctx context.Context, id string, status CallStatus, force bool) error {
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		var current CallStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM calls WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		if !force && !CanTransition(current, status) {
			slog.Warn("call status transition blocked", "call_id", id, "from", current, "to", status)
			if r.Observer != nil {
				r.Observer.TransitionBlocked(ctx, id, current, status)
			}
			return nil
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE calls SET status = $2, updated_at = $3 WHERE id = $1`,
			id, status, r.clock().UTC())
		return err
	})
}

func (r *PostgresRepo) AppendTranscript(ctx context.Context, id string, speaker Speaker, text string) error {
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		var raw []byte
		err := tx.QueryRowContext(ctx, `SELECT transcript FROM calls WHERE id = $1 FOR UPDATE`, id).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		var transcript []TranscriptEntry
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &transcript); err != nil {
				return err
			}
		}

		now := r.clock().UTC()
		var last *TranscriptEntry
		if n := len(transcript); n > 0 {
			last = &transcript[n-1]
		}
		if shouldDropTranscript(last, speaker, text, now) {
			return nil
		}

		transcript = append(transcript, TranscriptEntry{At: now, Speaker: speaker, Text: text})
		next, err := json.Marshal(transcript)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE calls SET transcript = $2, updated_at = $3 WHERE id = $1`,
			id, next, now)
		return err
	})
}

func (r *PostgresRepo) SetOutcome(ctx context.Context, id string, out Outcome) error {
	raw, err := json.Marshal(out)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE calls SET outcome = $2, updated_at = $3 WHERE id = $1`,
		id, raw, r.clock().UTC())
	return err
}

func (r *PostgresRepo) UpdateReservation(ctx context.Context, id string, patch ReservationPatch) error {
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		var raw []byte
		err := tx.QueryRowContext(ctx, `SELECT reservation FROM calls WHERE id = $1 FOR UPDATE`, id).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		var res Reservation
		if err := json.Unmarshal(raw, &res); err != nil {
			return err
		}
		next, err := json.Marshal(patch.Apply(res))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE calls SET reservation = $2, updated_at = $3 WHERE id = $1`,
			id, next, r.clock().UTC())
		return err
	})
}

func (r *PostgresRepo) AttachSessionRef(ctx context.Context, id string, ref string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE calls SET session_ref = $2, updated_at = $3 WHERE id = $1`,
		id, ref, r.clock().UTC())
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var (
		c          Call
		resJSON    []byte
		trJSON     []byte
		outJSON    []byte
		sessionRef sql.NullString
	)
	err := row.Scan(&c.ID, &resJSON, &c.Status, &trJSON, &outJSON, &sessionRef, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	if err != nil {
		return Call{}, err
	}

	if err := json.Unmarshal(resJSON, &c.Reservation); err != nil {
		return Call{}, err
	}
	if len(trJSON) > 0 {
		if err := json.Unmarshal(trJSON, &c.Transcript); err != nil {
			return Call{}, err
		}
	}
	if len(outJSON) > 0 {
		var o Outcome
		if err := json.Unmarshal(outJSON, &o); err != nil {
			return Call{}, err
		}
		c.Outcome = &o
	}
	if sessionRef.Valid {
		c.SessionRef = sessionRef.String
	}
	return c, nil
}
