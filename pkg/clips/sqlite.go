package clips

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"time"

	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLStore keeps clips in a sqlite database. Ball and goal are stored as
// their JSON encoding.
type SQLStore struct {
	db    *sql.DB
	limit int
}

// OpenSQLStore opens (creating if needed) the database at dsn. A positive
// limit prunes the oldest clips after each save.
func OpenSQLStore(dsn string, limit int) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "clips: opening %s", dsn)
	}
	// one connection, so ":memory:" databases are shared and writes never race
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "clips: creating schema")
	}
	return &SQLStore{db: db, limit: limit}, nil
}

func (s *SQLStore) Save(ctx context.Context, c Clip) error {
	ball, err := encodeJSON(c.Ball)
	if err != nil {
		return err
	}
	goal, err := encodeJSON(c.Goal)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO clips (id, session, event_type, start_ns, end_ns, frame_count, ball, goal, distance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Session, c.EventType.String(), c.StartTime.UnixNano(), c.EndTime.UnixNano(),
		c.FrameCount, ball, goal, c.Distance)
	if err != nil {
		return errors.Wrapf(err, "clips: saving %s", c.ID)
	}

	if s.limit > 0 {
		_, err = s.db.ExecContext(ctx, `
			DELETE FROM clips WHERE id NOT IN (
				SELECT id FROM clips ORDER BY end_ns DESC, rowid DESC LIMIT ?
			)`, s.limit)
		if err != nil {
			return errors.Wrap(err, "clips: pruning")
		}
	}
	return nil
}

const selectClip = `SELECT id, session, event_type, start_ns, end_ns, frame_count, ball, goal, distance FROM clips`

func (s *SQLStore) Get(ctx context.Context, id string) (Clip, error) {
	row := s.db.QueryRowContext(ctx, selectClip+` WHERE id = ?`, id)
	c, err := scanClip(row)
	if err == sql.ErrNoRows {
		return Clip{}, errors.Wrapf(ErrNotFound, "id %q", id)
	}
	return c, err
}

func (s *SQLStore) List(ctx context.Context, limit int) ([]Clip, error) {
	if limit <= 0 {
		limit = -1 // no limit in sqlite
	}
	rows, err := s.db.QueryContext(ctx, selectClip+` ORDER BY end_ns DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "clips: listing")
	}
	defer rows.Close()

	out := make([]Clip, 0)
	for rows.Next() {
		c, err := scanClip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, errors.Wrap(rows.Err(), "clips: listing")
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clips`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "clips: counting")
	}
	return n, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClip(row scanner) (Clip, error) {
	var (
		c          Clip
		eventType  string
		start, end int64
		ball, goal sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Session, &eventType, &start, &end, &c.FrameCount, &ball, &goal, &c.Distance); err != nil {
		if err == sql.ErrNoRows {
			return Clip{}, err
		}
		return Clip{}, errors.Wrap(err, "clips: scanning")
	}

	if err := c.EventType.UnmarshalText([]byte(eventType)); err != nil {
		return Clip{}, errors.Wrapf(err, "clips: clip %s", c.ID)
	}
	c.StartTime = time.Unix(0, start).UTC()
	c.EndTime = time.Unix(0, end).UTC()

	if ball.Valid {
		c.Ball = new(detection.Detection)
		if err := json.Unmarshal([]byte(ball.String), c.Ball); err != nil {
			return Clip{}, errors.Wrapf(err, "clips: ball of clip %s", c.ID)
		}
	}
	if goal.Valid {
		c.Goal = new(detection.GoalCandidate)
		if err := json.Unmarshal([]byte(goal.String), c.Goal); err != nil {
			return Clip{}, errors.Wrapf(err, "clips: goal of clip %s", c.ID)
		}
	}
	return c, nil
}

// encodeJSON returns nil for a nil pointer so the column stays NULL.
func encodeJSON[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "clips: encoding")
	}
	return string(b), nil
}

var (
	_ Store = (*SQLStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
