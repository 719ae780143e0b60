package monitor

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"channelwatch/internal/config"
	"channelwatch/internal/store"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type sentAlert struct {
	LogChannelID string
	Alert        Alert
	MessageID    string
}

type fakeMessenger struct {
	mu      sync.Mutex
	latest  map[string]time.Time
	created map[string]time.Time
	sent    []sentAlert
	deleted []string
	edited  []string
	nextID  int
	sendErr error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		latest:  make(map[string]time.Time),
		created: make(map[string]time.Time),
	}
}

func (m *fakeMessenger) ChannelName(channelID string) (string, error) {
	return "chan-" + channelID, nil
}

func (m *fakeMessenger) LatestMessageTime(channelID string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.latest[channelID]
	return t, ok, nil
}

func (m *fakeMessenger) MessageCreatedAt(channelID, messageID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.created[messageID]
	if !ok {
		return time.Time{}, errors.New("unknown message")
	}
	return t, nil
}

func (m *fakeMessenger) SendAlert(logChannelID string, alert Alert) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.nextID++
	id := fmt.Sprintf("msg-%d", m.nextID)
	m.sent = append(m.sent, sentAlert{LogChannelID: logChannelID, Alert: alert, MessageID: id})
	return id, nil
}

func (m *fakeMessenger) EditAlertConfirmed(logChannelID, messageID, confirmedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edited = append(m.edited, messageID)
	return nil
}

func (m *fakeMessenger) DeleteMessage(channelID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, messageID)
	return nil
}

func (m *fakeMessenger) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *fakeMessenger) lastSent(t *testing.T) sentAlert {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatalf("no alert sent")
	}
	return m.sent[len(m.sent)-1]
}

func testSettings() Settings {
	return Settings{
		CheckInterval:     3 * time.Minute,
		Threshold:         5 * time.Minute,
		Debounce:          5 * time.Second,
		Retention:         config.RetentionPersist,
		DefaultLogChannel: "log-chan",
		DisplayTimezone:   "UTC",
	}
}

func newTestEngine(t *testing.T) (*Engine, *fakeMessenger, *fakeClock) {
	t.Helper()
	dir := t.TempDir()
	monitors, err := store.OpenMonitorStore(filepath.Join(dir, "monitored.json"))
	if err != nil {
		t.Fatalf("open monitor store: %v", err)
	}
	guilds, err := store.OpenConfigStore(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("open config store: %v", err)
	}
	msgr := newFakeMessenger()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	eng := NewEngine(zap.NewNop(), monitors, guilds, msgr, testSettings()).WithClock(clock)
	return eng, msgr, clock
}

func watchChannel(t *testing.T, eng *Engine, msgr *fakeMessenger, clock *fakeClock, guildID, channelID string) {
	t.Helper()
	msgr.mu.Lock()
	msgr.latest[channelID] = clock.now
	msgr.mu.Unlock()
	if status := eng.AddMonitor(guildID, channelID); status != AddOK {
		t.Fatalf("add monitor: status %d", status)
	}
}

func TestFirstSightCreatesRecordWithoutAlert(t *testing.T) {
	eng, msgr, clock := newTestEngine(t)
	if _, err := eng.guilds.AddMonitored("g1", "c1"); err != nil {
		t.Fatalf("seed monitored: %v", err)
	}
	msgr.latest["c1"] = clock.now.Add(-time.Hour)

	eng.CheckAll()

	if msgr.sentCount() != 0 {
		t.Fatalf("alert sent on first sight")
	}
	rec, ok := eng.monitors.Get("c1")
	if !ok || rec.LastMessageTime == nil || !rec.LastMessageTime.Equal(clock.now.Add(-time.Hour)) {
		t.Fatalf("record not seeded: %+v", rec)
	}
}

func TestThresholdBoundary(t *testing.T) {
	eng, msgr, clock := newTestEngine(t)
	watchChannel(t, eng, msgr, clock, "g1", "c1")

	clock.Advance(5 * time.Minute)
	eng.CheckAll()
	if msgr.sentCount() != 0 {
		t.Fatalf("alert sent at exactly the threshold")
	}

	clock.Advance(time.Second)
	eng.CheckAll()
	if msgr.sentCount() != 1 {
		t.Fatalf("no alert just past the threshold")
	}

	sent := msgr.lastSent(t)
	if sent.LogChannelID != "log-chan" {
		t.Fatalf("log channel = %q", sent.LogChannelID)
	}
	if got := FormatDelay(sent.Alert.Delay); got != "5m 1s" {
		t.Fatalf("delay = %q, want %q", got, "5m 1s")
	}
	if sent.Alert.Ordinal != 1 {
		t.Fatalf("ordinal = %d", sent.Alert.Ordinal)
	}
}

func TestNewActivityResetsState(t *testing.T) {
	eng, msgr, clock := newTestEngine(t)
	watchChannel(t, eng, msgr, clock, "g1", "c1")

	clock.Advance(6 * time.Minute)
	eng.CheckAll()
	if msgr.sentCount() != 1 {
		t.Fatalf("no initial alert")
	}
	alertID := msgr.lastSent(t).MessageID

	msgr.mu.Lock()
	msgr.latest["c1"] = clock.now
	msgr.mu.Unlock()
	eng.CheckAll()

	rec, _ := eng.monitors.Get("c1")
	if rec.AlertCount != 0 || rec.Confirmed || rec.AlertMessageID != "" || rec.AlertSentTime != nil {
		t.Fatalf("state not reset: %+v", rec)
	}
	if msgr.sentCount() != 1 {
		t.Fatalf("new alert sent right after activity")
	}
	found := false
	for _, id := range msgr.deleted {
		if id == alertID {
			found = true
		}
	}
	if !found {
		t.Fatalf("stale alert %s not deleted", alertID)
	}
}

func TestDebounceSuppressesRapidRealerts(t *testing.T) {
	eng, msgr, clock := newTestEngine(t)
	watchChannel(t, eng, msgr, clock, "g1", "c1")

	clock.Advance(6 * time.Minute)
	eng.CheckAll()
	clock.Advance(2 * time.Second)
	eng.CheckAll()
	if msgr.sentCount() != 1 {
		t.Fatalf("debounce did not suppress: %d alerts", msgr.sentCount())
	}

	clock.Advance(10 * time.Second)
	eng.CheckAll()
	if msgr.sentCount() != 2 {
		t.Fatalf("re-alert after debounce window missing: %d alerts", msgr.sentCount())
	}
	if got := msgr.lastSent(t).Alert.Ordinal; got != 2 {
		t.Fatalf("second alert ordinal = %d", got)
	}
}

func TestConfirmIsIdempotent(t *testing.T) {
	eng, msgr, clock := newTestEngine(t)
	watchChannel(t, eng, msgr, clock, "g1", "c1")

	clock.Advance(6 * time.Minute)
	eng.CheckAll()

	res := eng.Confirm("c1", "g1", "1001")
	if res.Outcome != ConfirmOK || res.ConfirmedBy != "1001" {
		t.Fatalf("first confirm: %+v", res)
	}
	res = eng.Confirm("c1", "g1", "1002")
	if res.Outcome != ConfirmAlreadyConfirmed || res.ConfirmedBy != "1001" {
		t.Fatalf("second confirm: %+v", res)
	}

	clock.Advance(20 * time.Minute)
	eng.CheckAll()
	if msgr.sentCount() != 1 {
		t.Fatalf("confirmed channel re-alerted")
	}
	if len(msgr.edited) != 1 {
		t.Fatalf("alert edited %d times", len(msgr.edited))
	}
}

func TestConfirmWithoutMonitorOrPreserved(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	if res := eng.Confirm("nope", "g1", "1001"); res.Outcome != ConfirmNothing {
		t.Fatalf("outcome = %d", res.Outcome)
	}
}

func TestRemovalPreservesOldAlert(t *testing.T) {
	eng, msgr, clock := newTestEngine(t)
	watchChannel(t, eng, msgr, clock, "g1", "c1")

	clock.Advance(6 * time.Minute)
	eng.CheckAll()
	alertID := msgr.lastSent(t).MessageID
	msgr.mu.Lock()
	msgr.created[alertID] = clock.now
	msgr.mu.Unlock()

	clock.Advance(6 * time.Minute)
	if status := eng.RemoveMonitor("g1", "c1"); status != RemovePreserved {
		t.Fatalf("remove status = %d", status)
	}

	for _, id := range msgr.deleted {
		if id == alertID {
			t.Fatalf("preserved alert was deleted")
		}
	}
	p, ok := eng.PreservedAlerts()["c1"]
	if !ok {
		t.Fatalf("no preserved alert recorded")
	}
	if p.AlertMessageID != alertID || p.LogChannelID != "log-chan" {
		t.Fatalf("preserved alert = %+v", p)
	}

	res := eng.Confirm("c1", "g1", "1001")
	if res.Outcome != ConfirmPreserved {
		t.Fatalf("preserved confirm outcome = %d", res.Outcome)
	}
	if res = eng.Confirm("c1", "g1", "1002"); res.Outcome != ConfirmAlreadyConfirmed || res.ConfirmedBy != "1001" {
		t.Fatalf("second preserved confirm: %+v", res)
	}
}

func TestRemovalDeletesYoungAlert(t *testing.T) {
	eng, msgr, clock := newTestEngine(t)
	watchChannel(t, eng, msgr, clock, "g1", "c1")

	clock.Advance(6 * time.Minute)
	eng.CheckAll()
	alertID := msgr.lastSent(t).MessageID
	msgr.mu.Lock()
	msgr.created[alertID] = clock.now
	msgr.mu.Unlock()

	clock.Advance(time.Minute)
	if status := eng.RemoveMonitor("g1", "c1"); status != RemoveOK {
		t.Fatalf("remove status = %d", status)
	}

	found := false
	for _, id := range msgr.deleted {
		if id == alertID {
			found = true
		}
	}
	if !found {
		t.Fatalf("young alert not deleted")
	}
	if len(eng.PreservedAlerts()) != 0 {
		t.Fatalf("young alert was preserved")
	}
}

func TestAutoDeleteRemovesAlertAfterRetention(t *testing.T) {
	eng, msgr, clock := newTestEngine(t)
	s := testSettings()
	s.Retention = config.RetentionAutoDelete
	s.AutoDeleteAfter = 10 * time.Minute
	eng.UpdateSettings(s)

	var (
		delay    time.Duration
		callback func()
	)
	eng.schedule = func(d time.Duration, fn func()) {
		delay = d
		callback = fn
	}

	watchChannel(t, eng, msgr, clock, "g1", "c1")
	clock.Advance(6 * time.Minute)
	eng.CheckAll()
	alertID := msgr.lastSent(t).MessageID

	if callback == nil {
		t.Fatalf("no deletion scheduled")
	}
	if delay != s.AutoDeleteAfter {
		t.Fatalf("scheduled delay = %v, want %v", delay, s.AutoDeleteAfter)
	}

	eng.setPreserved("c1", PreservedAlert{
		LogChannelID:   "log-chan",
		AlertMessageID: alertID,
		AlertSentTime:  clock.now,
	})

	callback()

	found := false
	for _, id := range msgr.deleted {
		if id == alertID {
			found = true
		}
	}
	if !found {
		t.Fatalf("alert message not deleted")
	}
	rec, ok := eng.Record("c1")
	if !ok {
		t.Fatalf("record dropped")
	}
	if rec.AlertMessageID != "" || rec.AlertSentTime != nil {
		t.Fatalf("alert fields not cleared: %+v", rec)
	}
	if len(eng.PreservedAlerts()) != 0 {
		t.Fatalf("preserved alert survived auto-delete")
	}
}

func TestAddMonitorConflicts(t *testing.T) {
	eng, msgr, clock := newTestEngine(t)
	watchChannel(t, eng, msgr, clock, "g1", "c1")

	if status := eng.AddMonitor("g1", "c1"); status != AddAlreadyMonitored {
		t.Fatalf("duplicate add status = %d", status)
	}
	if status := eng.AddMonitor("g2", "c1"); status != AddMonitoredElsewhere {
		t.Fatalf("cross-guild add status = %d", status)
	}
}

func TestLogChannelOverrideChain(t *testing.T) {
	eng, msgr, clock := newTestEngine(t)
	watchChannel(t, eng, msgr, clock, "g1", "c1")

	if err := eng.guilds.SetLogChannel("g1", "guild-log"); err != nil {
		t.Fatalf("set guild log: %v", err)
	}
	clock.Advance(6 * time.Minute)
	eng.CheckAll()
	if got := msgr.lastSent(t).LogChannelID; got != "guild-log" {
		t.Fatalf("log channel = %q, want guild default", got)
	}

	if !eng.SetLogOverride("g1", "c1", "chan-log") {
		t.Fatalf("set override failed")
	}
	clock.Advance(time.Minute)
	eng.CheckAll()
	if got := msgr.lastSent(t).LogChannelID; got != "chan-log" {
		t.Fatalf("log channel = %q, want record override", got)
	}
}

func TestInactivityScenario(t *testing.T) {
	eng, msgr, clock := newTestEngine(t)
	watchChannel(t, eng, msgr, clock, "g1", "c1")

	clock.Advance(301 * time.Second)
	eng.CheckAll()
	if msgr.sentCount() != 1 {
		t.Fatalf("alerts = %d, want 1", msgr.sentCount())
	}
	if got := FormatDelay(msgr.lastSent(t).Alert.Delay); got != "5m 1s" {
		t.Fatalf("delay = %q", got)
	}

	msgr.mu.Lock()
	msgr.latest["c1"] = clock.now
	msgr.mu.Unlock()
	eng.CheckAll()

	rec, _ := eng.monitors.Get("c1")
	if rec.AlertCount != 0 {
		t.Fatalf("alert count after activity = %d", rec.AlertCount)
	}
	if msgr.sentCount() != 1 {
		t.Fatalf("unexpected second alert")
	}
}

func TestBootstrapStampsUnreadableChannels(t *testing.T) {
	eng, msgr, clock := newTestEngine(t)
	if _, err := eng.guilds.AddMonitored("g1", "ghost"); err != nil {
		t.Fatalf("seed monitored: %v", err)
	}
	_ = msgr

	eng.Bootstrap()

	rec, ok := eng.monitors.Get("ghost")
	if !ok || rec.LastMessageTime == nil || !rec.LastMessageTime.Equal(clock.now) {
		t.Fatalf("bootstrap record = %+v", rec)
	}
}

func TestBootstrapDropsOrphanRecords(t *testing.T) {
	eng, msgr, clock := newTestEngine(t)
	watchChannel(t, eng, msgr, clock, "g1", "c1")
	if err := eng.monitors.Put("stale", store.MonitorRecord{LastMessageTime: &clock.now}); err != nil {
		t.Fatalf("seed stale record: %v", err)
	}

	eng.Bootstrap()

	if _, ok := eng.monitors.Get("stale"); ok {
		t.Fatalf("orphan record survived bootstrap")
	}
	if _, ok := eng.monitors.Get("c1"); !ok {
		t.Fatalf("monitored record dropped")
	}
}

func TestFormatDelay(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{301 * time.Second, "5m 1s"},
		{0, "0m 0s"},
		{59 * time.Second, "0m 59s"},
		{10 * time.Minute, "10m 0s"},
		{-time.Second, "0m 0s"},
	}
	for _, tc := range cases {
		if got := FormatDelay(tc.d); got != tc.want {
			t.Fatalf("FormatDelay(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
