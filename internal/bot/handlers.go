package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"channelwatch/internal/monitor"
)

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	switch interaction.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(session, interaction)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(session, interaction)
	case discordgo.InteractionModalSubmit:
		b.handleModal(session, interaction)
	}
}

func (b *Bot) handleCommand(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.GuildID == "" {
		b.respond(session, interaction, "This command only works in a server.", true)
		return
	}

	data := interaction.ApplicationCommandData()
	if data.Name != "report" && !b.canManage(interaction) {
		b.respond(session, interaction, "You need Manage Channels to do that.", true)
		return
	}

	switch data.Name {
	case "cmconfig":
		b.handleCmConfig(session, interaction)
	case "cmsetup":
		b.handleCmSetup(session, interaction, data.Options)
	case "monitor":
		b.handleMonitorCommand(session, interaction, data.Options)
	case "masscreate":
		b.handleMassCreateCommand(session, interaction, data.Options)
	case "report":
		b.handleReport(session, interaction, data.Options)
	default:
		b.respond(session, interaction, "Unknown command.", true)
	}
}

func (b *Bot) handleCmConfig(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	target := b.guilds.UIChannel(interaction.GuildID)
	if target == "" {
		target = interaction.ChannelID
	}
	if err := b.postPanel(target); err != nil {
		b.logger.Warn("panel post failed", zap.String("channel", target), zap.Error(err))
		b.respond(session, interaction, "Could not post the panel there.", true)
		return
	}
	b.respond(session, interaction, fmt.Sprintf("Panel posted in <#%s>.", target), true)
}

func (b *Bot) handleCmSetup(session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	opts := optionMap(options)
	channel, ok := opts["channel"]
	if !ok {
		b.respond(session, interaction, "Pick a channel for the panel.", true)
		return
	}
	channelID := channel.ChannelValue(nil).ID
	if err := b.guilds.SetUIChannel(interaction.GuildID, channelID); err != nil {
		b.logger.Warn("persist ui channel failed", zap.Error(err))
		b.respond(session, interaction, "Saving the panel channel failed.", true)
		return
	}
	if err := b.postPanel(channelID); err != nil {
		b.respond(session, interaction, "Channel saved, but posting the panel failed.", true)
		return
	}
	b.respond(session, interaction, fmt.Sprintf("Panel channel set to <#%s>.", channelID), true)
}

func (b *Bot) handleMonitorCommand(session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	if len(options) == 0 {
		b.respond(session, interaction, "Missing subcommand.", true)
		return
	}
	sub := options[0]
	opts := optionMap(sub.Options)
	guildID := interaction.GuildID

	switch sub.Name {
	case "add":
		channelID := opts["channel"].ChannelValue(nil).ID
		switch b.engine.AddMonitor(guildID, channelID) {
		case monitor.AddOK:
			b.respond(session, interaction, fmt.Sprintf("Now watching <#%s>.", channelID), true)
		case monitor.AddAlreadyMonitored:
			b.respond(session, interaction, fmt.Sprintf("<#%s> is already monitored.", channelID), true)
		case monitor.AddMonitoredElsewhere:
			b.respond(session, interaction, fmt.Sprintf("<#%s> is monitored by another server.", channelID), true)
		default:
			b.respond(session, interaction, "Adding the monitor failed.", true)
		}
	case "remove":
		channelID := opts["channel"].ChannelValue(nil).ID
		switch b.engine.RemoveMonitor(guildID, channelID) {
		case monitor.RemoveOK:
			b.respond(session, interaction, fmt.Sprintf("Stopped watching <#%s>.", channelID), true)
		case monitor.RemovePreserved:
			b.respond(session, interaction, fmt.Sprintf("Stopped watching <#%s>; its open alert was kept.", channelID), true)
		case monitor.RemoveNotMonitored:
			b.respond(session, interaction, fmt.Sprintf("<#%s> is not monitored.", channelID), true)
		default:
			b.respond(session, interaction, "Removing the monitor failed.", true)
		}
	case "setlog":
		logID := opts["log"].ChannelValue(nil).ID
		if target, ok := opts["channel"]; ok {
			targetID := target.ChannelValue(nil).ID
			if !b.engine.SetLogOverride(guildID, targetID, logID) {
				b.respond(session, interaction, fmt.Sprintf("<#%s> is not monitored.", targetID), true)
				return
			}
			b.respond(session, interaction, fmt.Sprintf("Alerts for <#%s> now go to <#%s>.", targetID, logID), true)
			return
		}
		if err := b.guilds.SetLogChannel(guildID, logID); err != nil {
			b.respond(session, interaction, "Saving the log channel failed.", true)
			return
		}
		b.respond(session, interaction, fmt.Sprintf("Alert log channel set to <#%s>.", logID), true)
	case "list":
		embed, components := b.listEmbed(guildID, listState{Sort: "name"})
		b.respondList(session, interaction, embed, components, false)
	default:
		b.respond(session, interaction, "Unknown subcommand.", true)
	}
}

func (b *Bot) respondList(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent, update bool) {
	responseType := discordgo.InteractionResponseChannelMessageWithSource
	if update {
		responseType = discordgo.InteractionResponseUpdateMessage
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: responseType,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
			Flags:      discordgo.MessageFlagsEphemeral,
		},
	})
}

func (b *Bot) handleReport(session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	if b.history == nil {
		b.respond(session, interaction, "History is not enabled.", true)
		return
	}
	window := 24 * time.Hour
	label := "last day"
	if opts := optionMap(options); opts["period"] != nil && opts["period"].StringValue() == "week" {
		window = 7 * 24 * time.Hour
		label = "last week"
	}

	report, err := b.history.BuildReport(context.Background(), interaction.GuildID, time.Now().Add(-window))
	if err != nil {
		b.logger.Warn("report build failed", zap.Error(err))
		b.respond(session, interaction, "Building the report failed.", true)
		return
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Events", Value: strconv.Itoa(report.Total), Inline: true},
	}
	for _, event := range []string{"alert", "confirm", "preserve"} {
		if n := report.ByEvent[event]; n > 0 {
			fields = append(fields, &discordgo.MessageEmbedField{
				Name: event, Value: strconv.Itoa(n), Inline: true,
			})
		}
	}
	var channels []string
	for id, n := range report.ByChannel {
		channels = append(channels, fmt.Sprintf("<#%s>: %d", id, n))
	}
	if len(channels) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "By channel", Value: strings.Join(channels, "\n"),
		})
	}
	b.respondEmbed(session, interaction, commandEmbed("Alert report", "Activity over the "+label+".", colorAction, fields), true)
}

func (b *Bot) handleComponent(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	customID := interaction.MessageComponentData().CustomID

	if strings.HasPrefix(customID, confirmPrefix) {
		b.handleConfirm(session, interaction, confirmTarget(customID))
		return
	}

	if !b.canManage(interaction) {
		b.respond(session, interaction, "You need Manage Channels to do that.", true)
		return
	}

	switch {
	case customID == "panel:list":
		embed, components := b.listEmbed(interaction.GuildID, listState{Sort: "name"})
		b.respondList(session, interaction, embed, components, false)
	case strings.HasPrefix(customID, "list:"):
		embed, components := b.listEmbed(interaction.GuildID, parseListState(customID))
		b.respondList(session, interaction, embed, components, true)
	case customID == "panel:add":
		b.respondSelect(session, interaction, "Pick channels to watch.",
			channelSelectRow("sel:add", 25, []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildVoice}))
	case customID == "panel:remove":
		b.respondSelect(session, interaction, "Pick channels to stop watching.",
			channelSelectRow("sel:remove", 25, []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildVoice}))
	case customID == "panel:setlog":
		b.respondSelect(session, interaction, "Pick the alert log channel.",
			channelSelectRow("sel:setlog", 1, []discordgo.ChannelType{discordgo.ChannelTypeGuildText}))
	case customID == "panel:create":
		b.openMassCreateModal(session, interaction)
	case customID == "sel:add":
		res := b.engine.AddMonitors(interaction.GuildID, interaction.MessageComponentData().Values)
		b.updateSelectResult(session, interaction, addSummary(res))
	case customID == "sel:remove":
		res := b.engine.RemoveMonitors(interaction.GuildID, interaction.MessageComponentData().Values)
		b.updateSelectResult(session, interaction, removeSummary(res))
	case customID == "sel:setlog":
		values := interaction.MessageComponentData().Values
		if len(values) == 0 {
			b.updateSelectResult(session, interaction, "Nothing selected.")
			return
		}
		if err := b.guilds.SetLogChannel(interaction.GuildID, values[0]); err != nil {
			b.updateSelectResult(session, interaction, "Saving the log channel failed.")
			return
		}
		b.updateSelectResult(session, interaction, fmt.Sprintf("Alert log channel set to <#%s>.", values[0]))
	default:
		b.respond(session, interaction, "Unknown control.", true)
	}
}

func (b *Bot) handleConfirm(session *discordgo.Session, interaction *discordgo.InteractionCreate, channelID string) {
	if !b.canManage(interaction) {
		b.respond(session, interaction, "You need Manage Channels to confirm alerts.", true)
		return
	}

	result := b.engine.Confirm(channelID, interaction.GuildID, b.userID(interaction))
	switch result.Outcome {
	case monitor.ConfirmOK, monitor.ConfirmPreserved:
		b.respond(session, interaction, fmt.Sprintf("Alert for <#%s> confirmed.", channelID), true)
	case monitor.ConfirmAlreadyConfirmed:
		b.respond(session, interaction, fmt.Sprintf("Already confirmed by %s.", userMention(result.ConfirmedBy)), true)
	default:
		b.respond(session, interaction, "There is no open alert for that channel.", true)
	}
}

func (b *Bot) respondSelect(session *discordgo.Session, interaction *discordgo.InteractionCreate, prompt string, row discordgo.MessageComponent) {
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    prompt,
			Components: []discordgo.MessageComponent{row},
			Flags:      discordgo.MessageFlagsEphemeral,
		},
	})
}

// updateSelectResult replaces an ephemeral select prompt with its outcome.
func (b *Bot) updateSelectResult(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string) {
	empty := []discordgo.MessageComponent{}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: empty,
		},
	})
}

func addSummary(res monitor.BulkResult) string {
	var parts []string
	if len(res.Added) > 0 {
		parts = append(parts, fmt.Sprintf("watching %s", mentionList(res.Added)))
	}
	if len(res.Already) > 0 {
		parts = append(parts, fmt.Sprintf("already monitored: %s", mentionList(res.Already)))
	}
	if len(res.Elsewhere) > 0 {
		parts = append(parts, fmt.Sprintf("monitored by another server: %s", mentionList(res.Elsewhere)))
	}
	if len(res.Failed) > 0 {
		parts = append(parts, fmt.Sprintf("failed: %s", mentionList(res.Failed)))
	}
	if len(parts) == 0 {
		return "Nothing selected."
	}
	return "Now " + strings.Join(parts, "; ") + "."
}

func removeSummary(res monitor.BulkResult) string {
	var parts []string
	if len(res.Removed) > 0 {
		parts = append(parts, fmt.Sprintf("Stopped watching %s", mentionList(res.Removed)))
	}
	if len(res.Preserved) > 0 {
		parts = append(parts, fmt.Sprintf("kept open alerts for %s", mentionList(res.Preserved)))
	}
	if len(res.NotMonitored) > 0 {
		parts = append(parts, fmt.Sprintf("not monitored: %s", mentionList(res.NotMonitored)))
	}
	if len(res.Failed) > 0 {
		parts = append(parts, fmt.Sprintf("failed: %s", mentionList(res.Failed)))
	}
	if len(parts) == 0 {
		return "Nothing selected."
	}
	return strings.Join(parts, "; ") + "."
}

func mentionList(ids []string) string {
	mentions := make([]string, len(ids))
	for i, id := range ids {
		mentions[i] = "<#" + id + ">"
	}
	return strings.Join(mentions, ", ")
}

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		out[opt.Name] = opt
	}
	return out
}
