package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store keeps the alert event history in sqlite.
type Store struct {
	db *sql.DB
}

// Event is one alert lifecycle entry: an alert send, a confirm, or a
// preservation on removal.
type Event struct {
	ID        int64
	GuildID   string
	ChannelID string
	Event     string
	Detail    string
	CreatedAt time.Time
}

// Report aggregates a guild's events over a window.
type Report struct {
	GuildID   string
	Since     time.Time
	Total     int
	ByEvent   map[string]int
	ByChannel map[string]int
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Store) Migrate() error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}

	var files []string
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := migrations.ReadFile(path.Join("migrations", file))
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			if isIgnorableMigrationError(err) {
				continue
			}
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
	}
	return nil
}

func isIgnorableMigrationError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate column")
}

func (s *Store) AddEvent(ctx context.Context, event Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_events (guild_id, channel_id, event, detail, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, event.GuildID, event.ChannelID, event.Event, event.Detail, event.CreatedAt.Unix())
	return err
}

func (s *Store) ListEvents(ctx context.Context, guildID string, since time.Time) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, channel_id, event, detail, created_at
		FROM alert_events
		WHERE guild_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`, guildID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var created int64
		if err := rows.Scan(&event.ID, &event.GuildID, &event.ChannelID, &event.Event, &event.Detail, &created); err != nil {
			return nil, err
		}
		event.CreatedAt = time.Unix(created, 0)
		events = append(events, event)
	}
	return events, rows.Err()
}

// BuildReport aggregates a guild's events since the given time.
func (s *Store) BuildReport(ctx context.Context, guildID string, since time.Time) (Report, error) {
	events, err := s.ListEvents(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		GuildID:   guildID,
		Since:     since,
		Total:     len(events),
		ByEvent:   make(map[string]int),
		ByChannel: make(map[string]int),
	}
	for _, event := range events {
		report.ByEvent[event.Event]++
		report.ByChannel[event.ChannelID]++
	}
	return report, nil
}

func (s *Store) Cleanup(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	_, err := s.db.ExecContext(ctx, `DELETE FROM alert_events WHERE created_at < ?`, cutoff.Unix())
	return err
}
