package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"channelwatch/internal/config"
	"channelwatch/internal/metrics"
	"channelwatch/internal/store"
)

// Messenger is the slice of the chat platform the engine needs.
type Messenger interface {
	ChannelName(channelID string) (string, error)
	LatestMessageTime(channelID string) (time.Time, bool, error)
	MessageCreatedAt(channelID, messageID string) (time.Time, error)
	SendAlert(logChannelID string, alert Alert) (string, error)
	EditAlertConfirmed(logChannelID, messageID, confirmedBy string) error
	DeleteMessage(channelID, messageID string) error
}

// Recorder receives alert lifecycle events for the history store.
type Recorder interface {
	Record(guildID, channelID, event, detail string)
}

// Alert carries everything needed to render an inactivity alert.
type Alert struct {
	ChannelID    string
	ChannelName  string
	LastMessage  time.Time
	Delay        time.Duration
	Ordinal      int
	Timezone     string
	PingEveryone bool
	PingRoleIDs  []string
}

// PreservedAlert is an alert message kept alive after its monitor was removed.
type PreservedAlert struct {
	LogChannelID   string
	AlertMessageID string
	AlertSentTime  time.Time
	Confirmed      bool
	ConfirmedBy    string
}

// Settings are the tunables the engine reads each cycle. They can be swapped
// at runtime via UpdateSettings.
type Settings struct {
	CheckInterval     time.Duration
	Threshold         time.Duration
	Debounce          time.Duration
	Retention         string
	AutoDeleteAfter   time.Duration
	DefaultLogChannel string
	DisplayTimezone   string
	PingEveryone      bool
	PingRoleIDs       []string
}

// SettingsFromConfig maps the file configuration onto engine settings.
func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		CheckInterval:     time.Duration(cfg.Monitor.CheckIntervalSeconds) * time.Second,
		Threshold:         time.Duration(cfg.Monitor.ThresholdSeconds) * time.Second,
		Debounce:          time.Duration(cfg.Monitor.DebounceSeconds) * time.Second,
		Retention:         cfg.Alerts.Retention,
		AutoDeleteAfter:   time.Duration(cfg.Alerts.AutoDeleteSeconds) * time.Second,
		DefaultLogChannel: cfg.DefaultLogChannel,
		DisplayTimezone:   cfg.DisplayTimezone,
		PingEveryone:      cfg.Alerts.PingEveryone,
		PingRoleIDs:       append([]string(nil), cfg.Alerts.PingRoleIDs...),
	}
}

type Engine struct {
	log      *zap.Logger
	monitors *store.MonitorStore
	guilds   *store.ConfigStore
	msgr     Messenger
	recorder Recorder
	metrics  *metrics.Metrics
	clock    Clock
	schedule func(time.Duration, func())

	settingsMu sync.Mutex
	settings   Settings

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	preservedMu sync.Mutex
	preserved   map[string]PreservedAlert
}

func NewEngine(logger *zap.Logger, monitors *store.MonitorStore, guilds *store.ConfigStore, msgr Messenger, settings Settings) *Engine {
	return &Engine{
		log:       logger,
		monitors:  monitors,
		guilds:    guilds,
		msgr:      msgr,
		clock:     realClock{},
		schedule:  func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
		settings:  settings,
		locks:     make(map[string]*sync.Mutex),
		preserved: make(map[string]PreservedAlert),
	}
}

func (e *Engine) WithClock(c Clock) *Engine {
	e.clock = c
	return e
}

func (e *Engine) WithRecorder(r Recorder) *Engine {
	e.recorder = r
	return e
}

func (e *Engine) WithMetrics(m *metrics.Metrics) *Engine {
	e.metrics = m
	return e
}

func (e *Engine) Settings() Settings {
	e.settingsMu.Lock()
	defer e.settingsMu.Unlock()
	return e.settings
}

func (e *Engine) UpdateSettings(s Settings) {
	e.settingsMu.Lock()
	e.settings = s
	e.settingsMu.Unlock()
	e.log.Info("engine settings updated",
		zap.Duration("threshold", s.Threshold),
		zap.Duration("check_interval", s.CheckInterval),
		zap.String("retention", s.Retention))
}

func (e *Engine) guildLock(guildID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[guildID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[guildID] = l
	}
	return l
}

// Run drives the poll loop until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	for {
		interval := e.Settings().CheckInterval
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			e.CheckAll()
		}
	}
}

// CheckAll runs one poll cycle over every monitored channel.
func (e *Engine) CheckAll() {
	if e.metrics != nil {
		e.metrics.PollCycles.Inc()
	}
	for guildID, channels := range e.guilds.AllMonitored() {
		lock := e.guildLock(guildID)
		for _, channelID := range channels {
			lock.Lock()
			e.checkChannel(guildID, channelID)
			lock.Unlock()
		}
	}
}

// checkChannel evaluates one channel. Caller holds the guild lock.
func (e *Engine) checkChannel(guildID, channelID string) {
	s := e.Settings()
	now := e.clock.Now()

	latest, hasMessages, err := e.msgr.LatestMessageTime(channelID)
	if err != nil {
		e.pollError(guildID, channelID, "fetch latest message", err)
		return
	}
	if !hasMessages {
		e.log.Debug("channel has no messages", zap.String("channel", channelID))
		return
	}

	rec, ok := e.monitors.Get(channelID)
	if !ok {
		fresh := store.MonitorRecord{LastMessageTime: &latest}
		if err := e.monitors.Put(channelID, fresh); err != nil {
			e.pollError(guildID, channelID, "persist new record", err)
		}
		return
	}

	if rec.LastMessageTime == nil || !latest.Equal(*rec.LastMessageTime) {
		if rec.AlertMessageID != "" {
			e.deleteAlert(e.resolveLogChannel(guildID, rec), rec.AlertMessageID)
		}
		rec.LastMessageTime = &latest
		rec.AlertCount = 0
		rec.AlertMessageID = ""
		rec.AlertSentTime = nil
		rec.Confirmed = false
		rec.ConfirmedBy = ""
		if err := e.monitors.Put(channelID, rec); err != nil {
			e.pollError(guildID, channelID, "persist reset", err)
		}
		return
	}

	if rec.Confirmed {
		return
	}

	delay := now.Sub(*rec.LastMessageTime)
	if delay <= s.Threshold {
		return
	}
	if rec.AlertSentTime != nil && now.Sub(*rec.AlertSentTime) < s.Debounce {
		return
	}

	logChannel := e.resolveLogChannel(guildID, rec)
	if logChannel == "" {
		e.log.Warn("no log channel configured",
			zap.String("guild", guildID), zap.String("channel", channelID))
		return
	}

	if rec.AlertMessageID != "" {
		e.deleteAlert(logChannel, rec.AlertMessageID)
	}

	name, err := e.msgr.ChannelName(channelID)
	if err != nil {
		name = channelID
	}
	alert := Alert{
		ChannelID:    channelID,
		ChannelName:  name,
		LastMessage:  *rec.LastMessageTime,
		Delay:        delay,
		Ordinal:      rec.AlertCount + 1,
		Timezone:     s.DisplayTimezone,
		PingEveryone: s.PingEveryone,
		PingRoleIDs:  s.PingRoleIDs,
	}
	messageID, err := e.msgr.SendAlert(logChannel, alert)
	if err != nil {
		e.pollError(guildID, channelID, "send alert", err)
		return
	}

	rec.AlertCount++
	rec.AlertMessageID = messageID
	rec.AlertSentTime = &now
	if err := e.monitors.Put(channelID, rec); err != nil {
		e.pollError(guildID, channelID, "persist alert", err)
		return
	}

	if e.metrics != nil {
		e.metrics.AlertsSent.Inc()
	}
	if e.recorder != nil {
		e.recorder.Record(guildID, channelID, "alert", FormatDelay(delay))
	}
	if s.Retention == config.RetentionAutoDelete && s.AutoDeleteAfter > 0 {
		e.scheduleAutoDelete(guildID, channelID, logChannel, messageID, s.AutoDeleteAfter)
	}
}

func (e *Engine) scheduleAutoDelete(guildID, channelID, logChannelID, messageID string, after time.Duration) {
	e.schedule(after, func() {
		lock := e.guildLock(guildID)
		lock.Lock()
		if rec, ok := e.monitors.Get(channelID); ok && rec.AlertMessageID == messageID {
			rec.AlertMessageID = ""
			rec.AlertSentTime = nil
			if err := e.monitors.Put(channelID, rec); err != nil {
				e.log.Warn("persist after auto-delete failed", zap.Error(err))
			}
		}
		lock.Unlock()

		e.preservedMu.Lock()
		if p, ok := e.preserved[channelID]; ok && p.AlertMessageID == messageID {
			delete(e.preserved, channelID)
		}
		e.preservedMu.Unlock()

		e.deleteAlert(logChannelID, messageID)
	})
}

// resolveLogChannel applies the override chain: record, guild config, default.
func (e *Engine) resolveLogChannel(guildID string, rec store.MonitorRecord) string {
	if rec.LogChannel != "" {
		return rec.LogChannel
	}
	if ch := e.guilds.LogChannel(guildID); ch != "" {
		return ch
	}
	return e.Settings().DefaultLogChannel
}

func (e *Engine) deleteAlert(logChannelID, messageID string) {
	if logChannelID == "" || messageID == "" {
		return
	}
	if err := e.msgr.DeleteMessage(logChannelID, messageID); err != nil {
		e.log.Debug("stale alert delete failed",
			zap.String("message", messageID), zap.Error(err))
	}
}

func (e *Engine) pollError(guildID, channelID, op string, err error) {
	if e.metrics != nil {
		e.metrics.PollErrors.Inc()
	}
	e.log.Warn("poll step failed",
		zap.String("guild", guildID),
		zap.String("channel", channelID),
		zap.String("op", op),
		zap.Error(err))
}

// Bootstrap refreshes the last-message time of every monitored channel at
// startup. Channels the bot cannot read are stamped with the current time.
func (e *Engine) Bootstrap() {
	now := e.clock.Now()
	for guildID, channels := range e.guilds.AllMonitored() {
		lock := e.guildLock(guildID)
		for _, channelID := range channels {
			lock.Lock()
			rec, _ := e.monitors.Get(channelID)
			latest, ok, err := e.msgr.LatestMessageTime(channelID)
			if err != nil || !ok {
				latest = now
			}
			rec.LastMessageTime = &latest
			if err := e.monitors.Put(channelID, rec); err != nil {
				e.log.Warn("bootstrap persist failed",
					zap.String("channel", channelID), zap.Error(err))
			}
			lock.Unlock()
		}
	}
	for _, channelID := range e.monitors.Channels() {
		if e.guilds.GuildFor(channelID) != "" {
			continue
		}
		if _, ok, err := e.monitors.Pop(channelID); ok && err == nil {
			e.log.Info("dropped orphan channel record", zap.String("channel", channelID))
		}
	}
	e.log.Info("monitor state bootstrapped", zap.Int("channels", e.monitors.Len()))
}

// Record is a lock-free read of a channel's current state, for display.
func (e *Engine) Record(channelID string) (store.MonitorRecord, bool) {
	return e.monitors.Get(channelID)
}

// PreservedAlerts returns a snapshot keyed by channel ID.
func (e *Engine) PreservedAlerts() map[string]PreservedAlert {
	e.preservedMu.Lock()
	defer e.preservedMu.Unlock()
	out := make(map[string]PreservedAlert, len(e.preserved))
	for id, p := range e.preserved {
		out[id] = p
	}
	return out
}

func (e *Engine) preservedFor(channelID string) (PreservedAlert, bool) {
	e.preservedMu.Lock()
	defer e.preservedMu.Unlock()
	p, ok := e.preserved[channelID]
	return p, ok
}

func (e *Engine) setPreserved(channelID string, p PreservedAlert) {
	e.preservedMu.Lock()
	e.preserved[channelID] = p
	e.preservedMu.Unlock()
}
