package bot

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"channelwatch/internal/config"
	"channelwatch/internal/history"
	"channelwatch/internal/metrics"
	"channelwatch/internal/monitor"
	"channelwatch/internal/store"
)

type Bot struct {
	cfg     config.Config
	logger  *zap.Logger
	engine  *monitor.Engine
	guilds  *store.ConfigStore
	history *history.Store
	metrics *metrics.Metrics
	session *discordgo.Session
}

func New(cfg config.Config, logger *zap.Logger, guilds *store.ConfigStore, historyStore *history.Store) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages

	return &Bot{
		cfg:     cfg,
		logger:  logger,
		guilds:  guilds,
		history: historyStore,
		session: session,
	}, nil
}

// SetEngine wires the monitor engine in after construction; the engine needs
// the bot as its Messenger, so the two are linked in main.
func (b *Bot) SetEngine(engine *monitor.Engine) {
	b.engine = engine
}

func (b *Bot) SetMetrics(m *metrics.Metrics) {
	b.metrics = m
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}
	return nil
}

func (b *Bot) Close(ctx context.Context) {
	_ = ctx
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready",
		zap.String("user", session.State.User.Username),
		zap.Int("guilds", len(event.Guilds)))

	if err := b.registerCommands(); err != nil {
		b.logger.Error("command registration failed", zap.Error(err))
	}
	go b.engine.Bootstrap()
}

// Messenger implementation used by the monitor engine.

func (b *Bot) ChannelName(channelID string) (string, error) {
	if ch, err := b.session.State.Channel(channelID); err == nil {
		return ch.Name, nil
	}
	ch, err := b.session.Channel(channelID)
	if err != nil {
		return "", err
	}
	return ch.Name, nil
}

func (b *Bot) LatestMessageTime(channelID string) (time.Time, bool, error) {
	messages, err := b.session.ChannelMessages(channelID, 1, "", "", "")
	if err != nil {
		return time.Time{}, false, err
	}
	if len(messages) == 0 {
		return time.Time{}, false, nil
	}
	return messages[0].Timestamp.UTC(), true, nil
}

func (b *Bot) MessageCreatedAt(channelID, messageID string) (time.Time, error) {
	message, err := b.session.ChannelMessage(channelID, messageID)
	if err != nil {
		return time.Time{}, err
	}
	return message.Timestamp.UTC(), nil
}

func (b *Bot) SendAlert(logChannelID string, alert monitor.Alert) (string, error) {
	send := &discordgo.MessageSend{
		Embeds:          []*discordgo.MessageEmbed{alertEmbed(alert)},
		Components:      []discordgo.MessageComponent{confirmRow(alert.ChannelID, false)},
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if alert.PingEveryone {
		send.Content = "@everyone"
		send.AllowedMentions.Parse = []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeEveryone}
	}
	for _, roleID := range alert.PingRoleIDs {
		send.Content += " <@&" + roleID + ">"
		send.AllowedMentions.Roles = append(send.AllowedMentions.Roles, roleID)
	}

	message, err := b.session.ChannelMessageSendComplex(logChannelID, send)
	if err != nil {
		return "", err
	}
	return message.ID, nil
}

func (b *Bot) EditAlertConfirmed(logChannelID, messageID, confirmedBy string) error {
	message, err := b.session.ChannelMessage(logChannelID, messageID)
	if err != nil {
		return err
	}

	embeds := message.Embeds
	if len(embeds) > 0 {
		embeds[0].Fields = append(embeds[0].Fields, &discordgo.MessageEmbedField{
			Name:   "Confirmed by",
			Value:  userMention(confirmedBy),
			Inline: true,
		})
		embeds[0].Color = colorConfirmed
	}

	channelID := ""
	for _, row := range message.Components {
		if actions, ok := row.(*discordgo.ActionsRow); ok {
			for _, comp := range actions.Components {
				if button, ok := comp.(*discordgo.Button); ok {
					channelID = confirmTarget(button.CustomID)
				}
			}
		}
	}
	components := []discordgo.MessageComponent{confirmRow(channelID, true)}

	_, err = b.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel:    logChannelID,
		ID:         messageID,
		Embeds:     &embeds,
		Components: &components,
	})
	return err
}

func (b *Bot) DeleteMessage(channelID, messageID string) error {
	return b.session.ChannelMessageDelete(channelID, messageID)
}

func (b *Bot) respond(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	if embed == nil {
		b.respond(session, interaction, "No response available.", ephemeral)
		return
	}
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	})
}

// tempNotice posts a channel message that deletes itself after the configured
// UI delay.
func (b *Bot) tempNotice(channelID, content string) {
	message, err := b.session.ChannelMessageSend(channelID, content)
	if err != nil {
		return
	}
	delay := time.Duration(b.cfg.Alerts.UITempDeleteSeconds) * time.Second
	if delay <= 0 {
		return
	}
	time.AfterFunc(delay, func() {
		_ = b.session.ChannelMessageDelete(channelID, message.ID)
	})
}

// canManage reports whether the interaction member holds manage-channels or
// administrator.
func (b *Bot) canManage(interaction *discordgo.InteractionCreate) bool {
	if interaction.Member == nil {
		return false
	}
	perms := interaction.Member.Permissions
	return perms&discordgo.PermissionManageChannels != 0 ||
		perms&discordgo.PermissionAdministrator != 0
}

// userID resolves the acting user's snowflake; confirmations persist the ID
// and render the mention at display time.
func (b *Bot) userID(interaction *discordgo.InteractionCreate) string {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User.ID
	}
	if interaction.User != nil {
		return interaction.User.ID
	}
	return ""
}
