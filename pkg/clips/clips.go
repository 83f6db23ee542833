// Package clips records highlight clips: one record per detected event,
// spanning the seconds before it, kept in memory or in sqlite.
package clips

import (
	"context"
	"time"

	"github.com/Yaowwwwww/clipgoal-ai/pkg/detection"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/event"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/utils"
	"github.com/pkg/errors"
)

// ErrNotFound is returned for an unknown clip id.
var ErrNotFound = errors.New("clips: not found")

// Clip describes the moments leading up to one event of a stream.
type Clip struct {
	ID         string                   `json:"id"`
	Session    string                   `json:"session"`
	EventType  event.Type               `json:"event_type"`
	StartTime  time.Time                `json:"start_time"`
	EndTime    time.Time                `json:"end_time"`
	FrameCount int                      `json:"frame_count"`
	Ball       *detection.Detection     `json:"ball_info,omitempty"`
	Goal       *detection.GoalCandidate `json:"goal_info,omitempty"`
	Distance   float64                  `json:"distance"`
}

// Store keeps clips. List returns the newest clips first.
type Store interface {
	Save(ctx context.Context, c Clip) error
	Get(ctx context.Context, id string) (Clip, error)
	List(ctx context.Context, limit int) ([]Clip, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Config selects and tunes the store and the recorder.
type Config struct {
	Driver   string        `mapstructure:"driver"` // "memory" or "sqlite"
	DSN      string        `mapstructure:"dsn"`
	Limit    int           `mapstructure:"limit"` // clips kept, oldest dropped first
	Cooldown time.Duration `mapstructure:"cooldown"`
	Window   time.Duration `mapstructure:"window"`
}

func DefaultConfig() Config {
	return Config{
		Driver:   "memory",
		DSN:      "clips.db",
		Limit:    utils.MaxSavedClips,
		Cooldown: 3 * time.Second,
		Window:   time.Duration(utils.ClipWindowSeconds * float64(time.Second)),
	}
}

// Open returns the store selected by cfg.Driver.
func Open(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(cfg.Limit), nil
	case "sqlite":
		return OpenSQLStore(cfg.DSN, cfg.Limit)
	default:
		return nil, errors.Errorf("clips: unknown driver %q", cfg.Driver)
	}
}
