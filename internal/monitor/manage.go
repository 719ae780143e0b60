package monitor

import (
	"go.uber.org/zap"

	"channelwatch/internal/store"
)

type AddStatus int

const (
	AddOK AddStatus = iota
	AddAlreadyMonitored
	AddMonitoredElsewhere
	AddFailed
)

type RemoveStatus int

const (
	RemoveOK RemoveStatus = iota
	RemoveNotMonitored
	RemovePreserved
	RemoveFailed
)

// BulkResult summarizes a multi-channel add or remove.
type BulkResult struct {
	Added        []string
	Already      []string
	Elsewhere    []string
	Removed      []string
	NotMonitored []string
	Preserved    []string
	Failed       []string
}

// AddMonitor puts a channel under watch by a guild, seeding its record with
// the channel's current newest message time.
func (e *Engine) AddMonitor(guildID, channelID string) AddStatus {
	lock := e.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()
	return e.addLocked(guildID, channelID)
}

func (e *Engine) addLocked(guildID, channelID string) AddStatus {
	if owner := e.guilds.GuildFor(channelID); owner != "" {
		if owner == guildID {
			return AddAlreadyMonitored
		}
		return AddMonitoredElsewhere
	}

	added, err := e.guilds.AddMonitored(guildID, channelID)
	if err != nil {
		e.log.Warn("persist monitored list failed",
			zap.String("channel", channelID), zap.Error(err))
		return AddFailed
	}
	if !added {
		return AddAlreadyMonitored
	}

	last := e.clock.Now()
	if latest, ok, err := e.msgr.LatestMessageTime(channelID); err == nil && ok {
		last = latest
	}
	if err := e.monitors.Put(channelID, store.MonitorRecord{LastMessageTime: &last}); err != nil {
		e.log.Warn("persist new record failed",
			zap.String("channel", channelID), zap.Error(err))
		return AddFailed
	}
	return AddOK
}

// RemoveMonitor stops watching a channel. A live alert older than the
// threshold is kept as a preserved alert; a younger one is deleted.
func (e *Engine) RemoveMonitor(guildID, channelID string) RemoveStatus {
	lock := e.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()
	return e.removeLocked(guildID, channelID)
}

func (e *Engine) removeLocked(guildID, channelID string) RemoveStatus {
	removed, err := e.guilds.RemoveMonitored(guildID, channelID)
	if err != nil {
		e.log.Warn("persist monitored list failed",
			zap.String("channel", channelID), zap.Error(err))
		return RemoveFailed
	}
	if !removed {
		return RemoveNotMonitored
	}

	rec, ok, err := e.monitors.Pop(channelID)
	if err != nil {
		e.log.Warn("persist record removal failed",
			zap.String("channel", channelID), zap.Error(err))
	}
	if !ok || rec.AlertMessageID == "" {
		return RemoveOK
	}

	logChannel := e.resolveLogChannel(guildID, rec)
	created, err := e.msgr.MessageCreatedAt(logChannel, rec.AlertMessageID)
	if err != nil {
		e.log.Debug("alert message gone on removal",
			zap.String("message", rec.AlertMessageID), zap.Error(err))
		return RemoveOK
	}

	if e.clock.Now().Sub(created) > e.Settings().Threshold {
		e.setPreserved(channelID, PreservedAlert{
			LogChannelID:   logChannel,
			AlertMessageID: rec.AlertMessageID,
			AlertSentTime:  created,
			Confirmed:      rec.Confirmed,
			ConfirmedBy:    rec.ConfirmedBy,
		})
		if e.metrics != nil {
			e.metrics.PreservedAlerts.Inc()
		}
		if e.recorder != nil {
			e.recorder.Record(guildID, channelID, "preserve", rec.AlertMessageID)
		}
		return RemovePreserved
	}

	e.deleteAlert(logChannel, rec.AlertMessageID)
	return RemoveOK
}

// AddMonitors adds several channels under one lock hold.
func (e *Engine) AddMonitors(guildID string, channelIDs []string) BulkResult {
	lock := e.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	var res BulkResult
	for _, id := range channelIDs {
		switch e.addLocked(guildID, id) {
		case AddOK:
			res.Added = append(res.Added, id)
		case AddAlreadyMonitored:
			res.Already = append(res.Already, id)
		case AddMonitoredElsewhere:
			res.Elsewhere = append(res.Elsewhere, id)
		default:
			res.Failed = append(res.Failed, id)
		}
	}
	return res
}

// RemoveMonitors removes several channels under one lock hold.
func (e *Engine) RemoveMonitors(guildID string, channelIDs []string) BulkResult {
	lock := e.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	var res BulkResult
	for _, id := range channelIDs {
		switch e.removeLocked(guildID, id) {
		case RemoveOK:
			res.Removed = append(res.Removed, id)
		case RemovePreserved:
			res.Removed = append(res.Removed, id)
			res.Preserved = append(res.Preserved, id)
		case RemoveNotMonitored:
			res.NotMonitored = append(res.NotMonitored, id)
		default:
			res.Failed = append(res.Failed, id)
		}
	}
	return res
}

// SetLogOverride sets or clears the per-channel log channel override.
func (e *Engine) SetLogOverride(guildID, channelID, logChannelID string) bool {
	lock := e.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	rec, ok := e.monitors.Get(channelID)
	if !ok {
		return false
	}
	rec.LogChannel = logChannelID
	if err := e.monitors.Put(channelID, rec); err != nil {
		e.log.Warn("persist log override failed",
			zap.String("channel", channelID), zap.Error(err))
	}
	return true
}
