package store

import (
	"encoding/json"
	"os"
	"sort"
	"sync"
)

type guildEntry struct {
	LogChannelID string
	UIChannelID  string
	Monitored    []string
}

type guildDoc struct {
	LogChannelID snowflake   `json:"log_channel_id"`
	UIChannelID  snowflake   `json:"ui_channel_id"`
	Monitored    []snowflake `json:"monitored"`
}

type configDoc struct {
	UIChannelID snowflake           `json:"ui_channel_id"`
	Guilds      map[string]guildDoc `json:"guilds"`
}

// ConfigStore holds per-guild settings plus the legacy global panel channel.
type ConfigStore struct {
	mu          sync.Mutex
	path        string
	uiChannelID string
	guilds      map[string]*guildEntry
}

func OpenConfigStore(path string) (*ConfigStore, error) {
	s := &ConfigStore{path: path, guilds: make(map[string]*guildEntry)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, s.saveLocked()
		}
		return nil, err
	}

	doc, migrated, err := decodeConfigDoc(data)
	if err != nil {
		return nil, err
	}
	s.uiChannelID = string(doc.UIChannelID)
	for gid, g := range doc.Guilds {
		s.guilds[gid] = &guildEntry{
			LogChannelID: string(g.LogChannelID),
			UIChannelID:  string(g.UIChannelID),
			Monitored:    snowflakeStrings(g.Monitored),
		}
	}
	if migrated {
		return s, s.saveLocked()
	}
	return s, nil
}

// decodeConfigDoc accepts both the current layout and the legacy flat
// document that held only ui_channel_id at the top level.
func decodeConfigDoc(data []byte) (configDoc, bool, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return configDoc{}, false, err
	}
	if _, ok := raw["guilds"]; ok {
		var doc configDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return configDoc{}, false, err
		}
		return doc, false, nil
	}
	var legacy struct {
		UIChannelID snowflake `json:"ui_channel_id"`
	}
	if err := json.Unmarshal(data, &legacy); err != nil {
		return configDoc{}, false, err
	}
	return configDoc{UIChannelID: legacy.UIChannelID, Guilds: map[string]guildDoc{}}, true, nil
}

func (s *ConfigStore) ensureGuildLocked(guildID string) *guildEntry {
	g, ok := s.guilds[guildID]
	if !ok {
		g = &guildEntry{}
		s.guilds[guildID] = g
	}
	return g
}

func (s *ConfigStore) LogChannel(guildID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.guilds[guildID]; ok {
		return g.LogChannelID
	}
	return ""
}

func (s *ConfigStore) SetLogChannel(guildID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureGuildLocked(guildID).LogChannelID = channelID
	return s.saveLocked()
}

// UIChannel returns the guild panel channel, falling back to the legacy
// global value when the guild has none of its own.
func (s *ConfigStore) UIChannel(guildID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.guilds[guildID]; ok && g.UIChannelID != "" {
		return g.UIChannelID
	}
	return s.uiChannelID
}

func (s *ConfigStore) SetUIChannel(guildID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureGuildLocked(guildID).UIChannelID = channelID
	return s.saveLocked()
}

func (s *ConfigStore) Monitored(guildID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guilds[guildID]
	if !ok {
		return nil
	}
	out := append([]string(nil), g.Monitored...)
	sort.Strings(out)
	return out
}

func (s *ConfigStore) IsMonitored(guildID, channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guilds[guildID]
	if !ok {
		return false
	}
	for _, id := range g.Monitored {
		if id == channelID {
			return true
		}
	}
	return false
}

// AddMonitored records a channel for a guild. It reports false when the
// channel was already present.
func (s *ConfigStore) AddMonitored(guildID, channelID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.ensureGuildLocked(guildID)
	for _, id := range g.Monitored {
		if id == channelID {
			return false, nil
		}
	}
	g.Monitored = append(g.Monitored, channelID)
	return true, s.saveLocked()
}

func (s *ConfigStore) RemoveMonitored(guildID, channelID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guilds[guildID]
	if !ok {
		return false, nil
	}
	for i, id := range g.Monitored {
		if id == channelID {
			g.Monitored = append(g.Monitored[:i], g.Monitored[i+1:]...)
			return true, s.saveLocked()
		}
	}
	return false, nil
}

// GuildFor resolves the guild that monitors a channel, or "" if none does.
func (s *ConfigStore) GuildFor(channelID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for gid, g := range s.guilds {
		for _, id := range g.Monitored {
			if id == channelID {
				return gid
			}
		}
	}
	return ""
}

// AllMonitored returns a snapshot of monitored channels keyed by guild.
func (s *ConfigStore) AllMonitored() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]string, len(s.guilds))
	for gid, g := range s.guilds {
		if len(g.Monitored) == 0 {
			continue
		}
		out[gid] = append([]string(nil), g.Monitored...)
	}
	return out
}

func (s *ConfigStore) Guilds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.guilds))
	for gid := range s.guilds {
		ids = append(ids, gid)
	}
	sort.Strings(ids)
	return ids
}

func snowflakeStrings(in []snowflake) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

func stringSnowflakes(in []string) []snowflake {
	out := make([]snowflake, len(in))
	for i, v := range in {
		out[i] = snowflake(v)
	}
	return out
}

func (s *ConfigStore) saveLocked() error {
	doc := configDoc{
		UIChannelID: snowflake(s.uiChannelID),
		Guilds:      make(map[string]guildDoc, len(s.guilds)),
	}
	for gid, g := range s.guilds {
		doc.Guilds[gid] = guildDoc{
			LogChannelID: snowflake(g.LogChannelID),
			UIChannelID:  snowflake(g.UIChannelID),
			Monitored:    stringSnowflakes(g.Monitored),
		}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data)
}
