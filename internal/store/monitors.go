package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// MonitorRecord is the tracked state for one monitored channel.
type MonitorRecord struct {
	LogChannel      string
	LastMessageTime *time.Time
	AlertCount      int
	AlertMessageID  string
	AlertSentTime   *time.Time
	Confirmed       bool
	ConfirmedBy     string
}

// snowflake reads a Discord ID that older store files wrote as a JSON number
// and newer ones write as a string. It always marshals as string-or-null.
type snowflake string

func (s snowflake) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

func (s *snowflake) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = snowflake(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*s = snowflake(num.String())
	return nil
}

type monitorDoc struct {
	LogChannel      snowflake `json:"log_channel"`
	LastMessageTime *string   `json:"last_message_time"`
	AlertCount      int       `json:"alert_count"`
	AlertMessageID  snowflake `json:"alert_message_id"`
	AlertSentTime   *string   `json:"alert_sent_time"`
	Confirmed       bool      `json:"confirmed"`
	ConfirmedBy     snowflake `json:"confirmed_by"`
}

type MonitorStore struct {
	mu      sync.Mutex
	path    string
	records map[string]MonitorRecord
}

func OpenMonitorStore(path string) (*MonitorStore, error) {
	s := &MonitorStore{path: path, records: make(map[string]MonitorRecord)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, s.saveLocked()
		}
		return nil, err
	}

	var docs map[string]monitorDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, err
	}
	for id, doc := range docs {
		s.records[id] = recordFromDoc(doc)
	}
	return s, nil
}

func (s *MonitorStore) Get(channelID string) (MonitorRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[channelID]
	return rec, ok
}

func (s *MonitorStore) Put(channelID string, rec MonitorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[channelID] = rec
	return s.saveLocked()
}

// Pop removes and returns the record for a channel.
func (s *MonitorStore) Pop(channelID string) (MonitorRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[channelID]
	if !ok {
		return MonitorRecord{}, false, nil
	}
	delete(s.records, channelID)
	return rec, true, s.saveLocked()
}

func (s *MonitorStore) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *MonitorStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MonitorStore) saveLocked() error {
	docs := make(map[string]monitorDoc, len(s.records))
	for id, rec := range s.records {
		docs[id] = docFromRecord(rec)
	}
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data)
}

func recordFromDoc(doc monitorDoc) MonitorRecord {
	return MonitorRecord{
		LogChannel:      string(doc.LogChannel),
		LastMessageTime: parseTime(doc.LastMessageTime),
		AlertCount:      doc.AlertCount,
		AlertMessageID:  string(doc.AlertMessageID),
		AlertSentTime:   parseTime(doc.AlertSentTime),
		Confirmed:       doc.Confirmed,
		ConfirmedBy:     string(doc.ConfirmedBy),
	}
}

func docFromRecord(rec MonitorRecord) monitorDoc {
	return monitorDoc{
		LogChannel:      snowflake(rec.LogChannel),
		LastMessageTime: formatTime(rec.LastMessageTime),
		AlertCount:      rec.AlertCount,
		AlertMessageID:  snowflake(rec.AlertMessageID),
		AlertSentTime:   formatTime(rec.AlertSentTime),
		Confirmed:       rec.Confirmed,
		ConfirmedBy:     snowflake(rec.ConfirmedBy),
	}
}

// parseTime accepts RFC3339 plus the offset-less ISO form older store files
// carry, treating the latter as UTC.
func parseTime(value *string) *time.Time {
	if value == nil || *value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, *value); err == nil {
			utc := parsed.UTC()
			return &utc
		}
	}
	return nil
}

func formatTime(value *time.Time) *string {
	if value == nil {
		return nil
	}
	formatted := value.UTC().Format(time.RFC3339Nano)
	return &formatted
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
