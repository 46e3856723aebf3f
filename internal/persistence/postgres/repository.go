// Package postgres implements the domain store contracts on top of pgx. Every statement
// runs in a transaction scoped to the calling user so the database's row-level policies
// decide what is visible and writable.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/focusquest/internal/domain"
	"example.com/focusquest/internal/events"
	"example.com/focusquest/internal/observability"
)

const (
	sqlStateInsufficientPrivilege = "42501"
	sqlStateUniqueViolation       = "23505"
)

// Repository provides Postgres-backed persistence for profiles, tasks, focus sessions
// and their outbox events.
type Repository struct {
	pool    *pgxpool.Pool
	catalog map[string]EventMetadata
	now     func() time.Time
}

// Option configures a Repository.
type Option func(*Repository)

// WithTopics overrides the Kafka topics outbox events are routed to.
func WithTopics(profileTopic, reconcileTopic string) Option {
	return func(r *Repository) {
		r.catalog = buildCatalog(profileTopic, reconcileTopic)
	}
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool, opts ...Option) *Repository {
	r := &Repository{
		pool:    pool,
		catalog: buildCatalog(DefaultProfileTopic, DefaultReconcileTopic),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// inUserTx runs fn inside a transaction whose policy subject is userID.
func (r *Repository) inUserTx(ctx context.Context, operation, userID string, fn func(pgx.Tx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
			err = translate(operation, err)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('request.jwt.claim.sub', $1, true)", userID); err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func translate(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateInsufficientPrivilege:
			observability.RecordPolicyRejection(operation)
			return fmt.Errorf("%s: %w", operation, domain.ErrForbidden)
		case sqlStateUniqueViolation:
			if pgErr.ConstraintName == "profiles_username_key" {
				return domain.ErrUsernameTaken
			}
		}
	}
	return err
}

// GetProfile returns the profile for id, or nil when none exists.
func (r *Repository) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	var profile *domain.Profile
	err := r.inUserTx(ctx, "get_profile", id, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT id, username, email, total_xp FROM profiles WHERE id = $1`, id)
		var p domain.Profile
		if err := row.Scan(&p.ID, &p.Username, &p.Email, &p.TotalXP); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		profile = &p
		return nil
	})
	return profile, err
}

// FindProfileByUsername looks a profile up by its unique username.
func (r *Repository) FindProfileByUsername(ctx context.Context, username string) (*domain.Profile, error) {
	var profile *domain.Profile
	err := r.inUserTx(ctx, "find_profile", "", func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT id, username, total_xp FROM profiles WHERE username = $1`, username)
		var p domain.Profile
		if err := row.Scan(&p.ID, &p.Username, &p.TotalXP); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		profile = &p
		return nil
	})
	return profile, err
}

// InsertProfile creates the profile row and announces it.
func (r *Repository) InsertProfile(ctx context.Context, profile domain.Profile) error {
	return r.inUserTx(ctx, "insert_profile", profile.ID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO profiles (id, username, email, total_xp) VALUES ($1,$2,$3,$4)`,
			profile.ID, profile.Username, profile.Email, profile.TotalXP,
		); err != nil {
			return err
		}
		return r.insertOutbox(ctx, tx, profile.ID, "profile", profile.ID, events.TypeProfileChanged, events.ProfileChanged{
			UserID:     profile.ID,
			Username:   profile.Username,
			TotalXP:    profile.TotalXP,
			OccurredAt: r.now(),
		})
	})
}

// TopProfiles returns the highest-XP profiles, ties broken by id.
func (r *Repository) TopProfiles(ctx context.Context, limit int) ([]domain.Profile, error) {
	results := make([]domain.Profile, 0, limit)
	err := r.inUserTx(ctx, "top_profiles", "", func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id, username, total_xp FROM profiles ORDER BY total_xp DESC, id ASC LIMIT $1`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p domain.Profile
			if err := rows.Scan(&p.ID, &p.Username, &p.TotalXP); err != nil {
				return err
			}
			results = append(results, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

const taskColumns = `id, user_id, title, completed, priority, due_date, duration_min, spent_min, created_at`

func scanTask(row pgx.Row) (domain.Task, error) {
	var t domain.Task
	var priority string
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Completed, &priority, &t.DueDate, &t.DurationMin, &t.SpentMin, &t.CreatedAt); err != nil {
		return domain.Task{}, err
	}
	t.Priority = domain.Priority(priority)
	if t.DueDate != nil {
		d := t.DueDate.UTC()
		t.DueDate = &d
	}
	return t, nil
}

// ListTasks returns the user's tasks within scope. Dated scopes are ordered by due date
// then creation; scopes that include undated tasks are ordered by creation.
func (r *Repository) ListTasks(ctx context.Context, userID string, scope domain.TaskScope) ([]domain.Task, error) {
	args := []interface{}{userID}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1`

	var bounds string
	if scope.From != nil {
		args = append(args, *scope.From)
		bounds += fmt.Sprintf(" AND due_date >= $%d", len(args))
	}
	if scope.To != nil {
		args = append(args, *scope.To)
		bounds += fmt.Sprintf(" AND due_date <= $%d", len(args))
	}
	switch {
	case scope.IncludeUndated && bounds != "":
		query += ` AND (due_date IS NULL OR (TRUE` + bounds + `))`
	case scope.IncludeUndated:
	default:
		query += ` AND due_date IS NOT NULL` + bounds
	}

	if scope.IncludeUndated {
		query += ` ORDER BY created_at ASC, id ASC`
	} else {
		query += ` ORDER BY due_date ASC, created_at ASC, id ASC`
	}

	results := make([]domain.Task, 0)
	err := r.inUserTx(ctx, "list_tasks", userID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			task, err := scanTask(rows)
			if err != nil {
				return err
			}
			results = append(results, task)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// InsertTask persists a task and returns the stored record.
func (r *Repository) InsertTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = r.now()
	}

	var stored domain.Task
	err := r.inUserTx(ctx, "insert_task", task.UserID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO tasks (id, user_id, title, completed, priority, due_date, duration_min, spent_min, created_at)
             VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
             RETURNING `+taskColumns,
			task.ID, task.UserID, task.Title, task.Completed, string(task.Priority), task.DueDate, task.DurationMin, task.SpentMin, task.CreatedAt,
		)
		var err error
		stored, err = scanTask(row)
		return err
	})
	return stored, err
}

// SetTaskCompleted updates the completion flag of one of the user's tasks.
func (r *Repository) SetTaskCompleted(ctx context.Context, userID, taskID string, completed bool) error {
	return r.inUserTx(ctx, "toggle_task", userID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE tasks SET completed = $1 WHERE id = $2 AND user_id = $3`, completed, taskID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrTaskNotFound
		}
		return nil
	})
}

// DeleteTask removes one of the user's tasks.
func (r *Repository) DeleteTask(ctx context.Context, userID, taskID string) error {
	return r.inUserTx(ctx, "delete_task", userID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, taskID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrTaskNotFound
		}
		return nil
	})
}

// AddSpentMinutes credits focused minutes to a task.
func (r *Repository) AddSpentMinutes(ctx context.Context, userID, taskID string, minutes int) error {
	return r.inUserTx(ctx, "add_spent_minutes", userID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE tasks SET spent_min = spent_min + $1 WHERE id = $2 AND user_id = $3`, minutes, taskID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrTaskNotFound
		}
		return nil
	})
}

// InsertFocusSession appends a completed run to the session log.
func (r *Repository) InsertFocusSession(ctx context.Context, session domain.FocusSession) (domain.FocusSession, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = r.now()
	}

	err := r.inUserTx(ctx, "insert_focus_session", session.UserID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO focus_sessions (id, user_id, minutes, xp_earned, created_at) VALUES ($1,$2,$3,$4,$5)`,
			session.ID, session.UserID, session.Minutes, session.XPEarned, session.CreatedAt,
		); err != nil {
			return err
		}
		return r.insertOutbox(ctx, tx, session.UserID, "focus_session", session.ID, events.TypeFocusSessionRecorded, events.FocusSessionRecorded{
			SessionID:  session.ID,
			UserID:     session.UserID,
			Minutes:    session.Minutes,
			XPEarned:   session.XPEarned,
			OccurredAt: session.CreatedAt,
		})
	})
	if err != nil {
		return domain.FocusSession{}, err
	}
	observability.RecordFocusSession(session.CreatedAt)
	return session, nil
}

// SessionStats counts the user's sessions and focused minutes.
func (r *Repository) SessionStats(ctx context.Context, userID string) (domain.SessionStats, error) {
	var stats domain.SessionStats
	err := r.inUserTx(ctx, "session_stats", userID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`SELECT COUNT(*), COALESCE(SUM(minutes), 0) FROM focus_sessions WHERE user_id = $1`, userID,
		).Scan(&stats.Sessions, &stats.Minutes)
	})
	return stats, err
}

// AddXP increments the user's XP through the add_xp procedure and returns the new total.
func (r *Repository) AddXP(ctx context.Context, userID string, amount int) (int, error) {
	var total int
	err := r.inUserTx(ctx, "add_xp", userID, func(tx pgx.Tx) error {
		var newTotal *int
		if err := tx.QueryRow(ctx, `SELECT add_xp($1)`, amount).Scan(&newTotal); err != nil {
			return err
		}
		if newTotal == nil {
			return domain.ErrProfileNotFound
		}
		total = *newTotal
		return r.announceProfile(ctx, tx, userID)
	})
	if err != nil {
		return 0, err
	}
	observability.RecordXPAwarded(amount)
	return total, nil
}

// RequestReconcile queues an XP reconciliation for the user.
func (r *Repository) RequestReconcile(ctx context.Context, userID, reason string) error {
	return r.inUserTx(ctx, "request_reconcile", userID, func(tx pgx.Tx) error {
		return r.insertOutbox(ctx, tx, userID, "profile", userID, events.TypeXPReconcileRequested, events.XPReconcileRequested{
			UserID:      userID,
			Reason:      reason,
			RequestedAt: r.now(),
		})
	})
}

// ReconcileXP raises total_xp to the sum of the session log when it has fallen behind.
// It never lowers a total. The resulting total is returned.
func (r *Repository) ReconcileXP(ctx context.Context, userID string) (int, error) {
	var total int
	err := r.inUserTx(ctx, "reconcile_xp", userID, func(tx pgx.Tx) error {
		var before int
		if err := tx.QueryRow(ctx, `SELECT total_xp FROM profiles WHERE id = $1 FOR UPDATE`, userID).Scan(&before); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrProfileNotFound
			}
			return err
		}

		if err := tx.QueryRow(ctx,
			`UPDATE profiles
                SET total_xp = GREATEST(total_xp, (SELECT COALESCE(SUM(xp_earned), 0) FROM focus_sessions WHERE user_id = $1))
              WHERE id = $1
            RETURNING total_xp`, userID,
		).Scan(&total); err != nil {
			return err
		}
		if total == before {
			return nil
		}
		return r.announceProfile(ctx, tx, userID)
	})
	return total, err
}

func (r *Repository) announceProfile(ctx context.Context, tx pgx.Tx, userID string) error {
	var payload events.ProfileChanged
	if err := tx.QueryRow(ctx, `SELECT id, username, total_xp FROM profiles WHERE id = $1`, userID).
		Scan(&payload.UserID, &payload.Username, &payload.TotalXP); err != nil {
		return err
	}
	payload.OccurredAt = r.now()
	return r.insertOutbox(ctx, tx, userID, "profile", userID, events.TypeProfileChanged, payload)
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, userID, aggregateType, aggregateID, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := r.catalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s:%d", aggregateID, eventType, r.now().UnixNano())

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		userID,
		aggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		userID,
		body,
		dedupeKey,
	)
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

// Default topics for outbox events.
const (
	DefaultProfileTopic   = "profile_changes"
	DefaultReconcileTopic = "xp_reconcile"
)

func buildCatalog(profileTopic, reconcileTopic string) map[string]EventMetadata {
	return map[string]EventMetadata{
		events.TypeProfileChanged: {
			Topic:         profileTopic,
			SchemaSubject: profileTopic + "-value",
		},
		events.TypeFocusSessionRecorded: {
			Topic:         profileTopic,
			SchemaSubject: "focus_session_recorded-value",
		},
		events.TypeXPReconcileRequested: {
			Topic:         reconcileTopic,
			SchemaSubject: reconcileTopic + "-value",
		},
	}
}
