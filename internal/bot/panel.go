package bot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"channelwatch/internal/monitor"
)

const listPageSize = 10

var listSorts = []string{"name", "last", "alerts"}

func panelEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "Channel monitor",
		Description: "Watches channels for inactivity and alerts the log channel.\n" +
			"Use the buttons below to manage monitors.",
		Color:     colorAction,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func panelComponents() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "List", Style: discordgo.SecondaryButton, CustomID: "panel:list"},
				discordgo.Button{Label: "Add", Style: discordgo.PrimaryButton, CustomID: "panel:add"},
				discordgo.Button{Label: "Remove", Style: discordgo.DangerButton, CustomID: "panel:remove"},
				discordgo.Button{Label: "Set log", Style: discordgo.SecondaryButton, CustomID: "panel:setlog"},
				discordgo.Button{Label: "Create channels", Style: discordgo.SecondaryButton, CustomID: "panel:create"},
			},
		},
	}
}

func channelSelectRow(customID string, maxValues int, channelTypes []discordgo.ChannelType) discordgo.MessageComponent {
	minValues := 1
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				MenuType:     discordgo.ChannelSelectMenu,
				CustomID:     customID,
				MinValues:    &minValues,
				MaxValues:    maxValues,
				ChannelTypes: channelTypes,
			},
		},
	}
}

// postPanel sends the control panel to a channel, attaching the configured
// banner image when one is set.
func (b *Bot) postPanel(channelID string) error {
	embed := panelEmbed()
	send := &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: panelComponents(),
	}

	if path := b.cfg.Alerts.PanelImagePath; path != "" {
		if file, err := os.Open(path); err == nil {
			defer file.Close()
			name := filepath.Base(path)
			send.Files = []*discordgo.File{{Name: name, Reader: file}}
			embed.Image = &discordgo.MessageEmbedImage{URL: "attachment://" + name}
		}
	}

	_, err := b.session.ChannelMessageSendComplex(channelID, send)
	return err
}

type listEntry struct {
	ChannelID  string
	Name       string
	Last       *time.Time
	AlertCount int
	Confirmed  bool
}

// listState is carried through component custom IDs so pagination survives
// restarts: "list:<page>:<sort>".
type listState struct {
	Page int
	Sort string
}

func parseListState(customID string) listState {
	state := listState{Sort: "name"}
	parts := strings.Split(customID, ":")
	if len(parts) != 3 {
		return state
	}
	if page, err := strconv.Atoi(parts[1]); err == nil && page >= 0 {
		state.Page = page
	}
	for _, s := range listSorts {
		if parts[2] == s {
			state.Sort = s
		}
	}
	return state
}

func (s listState) customID(page int) string {
	return fmt.Sprintf("list:%d:%s", page, s.Sort)
}

func (s listState) nextSort() string {
	for i, name := range listSorts {
		if name == s.Sort {
			return listSorts[(i+1)%len(listSorts)]
		}
	}
	return listSorts[0]
}

func sortEntries(entries []listEntry, sortBy string) {
	switch sortBy {
	case "last":
		sort.Slice(entries, func(i, j int) bool {
			switch {
			case entries[i].Last == nil:
				return false
			case entries[j].Last == nil:
				return true
			default:
				return entries[i].Last.Before(*entries[j].Last)
			}
		})
	case "alerts":
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].AlertCount > entries[j].AlertCount
		})
	default:
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Name < entries[j].Name
		})
	}
}

func (b *Bot) listEntries(guildID string) []listEntry {
	ids := b.guilds.Monitored(guildID)
	entries := make([]listEntry, 0, len(ids))
	for _, id := range ids {
		entry := listEntry{ChannelID: id, Name: id}
		if name, err := b.ChannelName(id); err == nil {
			entry.Name = name
		}
		if rec, ok := b.engine.Record(id); ok {
			entry.Last = rec.LastMessageTime
			entry.AlertCount = rec.AlertCount
			entry.Confirmed = rec.Confirmed
		}
		entries = append(entries, entry)
	}
	return entries
}

func (b *Bot) listEmbed(guildID string, state listState) (*discordgo.MessageEmbed, []discordgo.MessageComponent) {
	entries := b.listEntries(guildID)
	sortEntries(entries, state.Sort)

	pages := (len(entries) + listPageSize - 1) / listPageSize
	if pages == 0 {
		pages = 1
	}
	if state.Page >= pages {
		state.Page = pages - 1
	}

	lo := state.Page * listPageSize
	hi := lo + listPageSize
	if hi > len(entries) {
		hi = len(entries)
	}

	var sb strings.Builder
	if len(entries) == 0 {
		sb.WriteString("No channels monitored.")
	}
	tz := b.engine.Settings().DisplayTimezone
	for _, entry := range entries[lo:hi] {
		last := "never seen"
		if entry.Last != nil {
			last = monitor.FormatLocal(*entry.Last, tz)
		}
		status := ""
		if entry.AlertCount > 0 {
			status = fmt.Sprintf(" | alerts: %d", entry.AlertCount)
		}
		if entry.Confirmed {
			status += " | confirmed"
		}
		fmt.Fprintf(&sb, "<#%s> | last: %s%s\n", entry.ChannelID, last, status)
	}

	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Monitored channels (%d)", len(entries)),
		Description: sb.String(),
		Color:       colorAction,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Page %d/%d | sorted by %s", state.Page+1, pages, state.Sort),
		},
	}

	components := []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Prev",
					Style:    discordgo.SecondaryButton,
					CustomID: state.customID(state.Page - 1),
					Disabled: state.Page == 0,
				},
				discordgo.Button{
					Label:    "Next",
					Style:    discordgo.SecondaryButton,
					CustomID: state.customID(state.Page + 1),
					Disabled: state.Page >= pages-1,
				},
				discordgo.Button{
					Label:    "Sort: " + state.nextSort(),
					Style:    discordgo.PrimaryButton,
					CustomID: fmt.Sprintf("list:0:%s", state.nextSort()),
				},
			},
		},
	}
	return embed, components
}
