package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"channelwatch/internal/monitor"
)

const (
	colorAlert     = 0xE74C3C
	colorConfirmed = 0x2ECC71
	colorAction    = 0x3498DB
	colorError     = 0x992D22
)

const confirmPrefix = "confirm:"

func alertEmbed(alert monitor.Alert) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Channel inactivity",
		Description: fmt.Sprintf("<#%s> has gone quiet.", alert.ChannelID),
		Color:       colorAlert,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Channel", Value: "#" + alert.ChannelName, Inline: true},
			{Name: "Last message", Value: monitor.FormatLocal(alert.LastMessage, alert.Timezone), Inline: true},
			{Name: "Quiet for", Value: monitor.FormatDelay(alert.Delay), Inline: true},
			{Name: "Alert", Value: fmt.Sprintf("#%d", alert.Ordinal), Inline: true},
		},
	}
}

func confirmRow(channelID string, disabled bool) discordgo.MessageComponent {
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Confirm",
				Style:    discordgo.SuccessButton,
				CustomID: confirmPrefix + channelID,
				Disabled: disabled,
			},
		},
	}
}

// confirmTarget extracts the channel ID a confirm button is bound to.
func confirmTarget(customID string) string {
	return strings.TrimPrefix(customID, confirmPrefix)
}

func userMention(userID string) string {
	if userID == "" {
		return "unknown"
	}
	return "<@" + userID + ">"
}

func commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}
