package history

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Recorder writes engine events to the history store, best effort.
type Recorder struct {
	store *Store
	log   *zap.Logger
}

func NewRecorder(store *Store, logger *zap.Logger) *Recorder {
	return &Recorder{store: store, log: logger}
}

func (r *Recorder) Record(guildID, channelID, event, detail string) {
	err := r.store.AddEvent(context.Background(), Event{
		GuildID:   guildID,
		ChannelID: channelID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now(),
	})
	if err != nil {
		r.log.Warn("history write failed",
			zap.String("guild", guildID),
			zap.String("event", event),
			zap.Error(err))
	}
}

// StartCleanup prunes old events once a day until the context is cancelled.
func (r *Recorder) StartCleanup(ctx context.Context, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.store.Cleanup(ctx, retentionDays); err != nil {
					r.log.Warn("history cleanup failed", zap.Error(err))
				}
			}
		}
	}()
}
