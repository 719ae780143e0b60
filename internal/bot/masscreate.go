package bot

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	massCreateMax      = 500
	guildChannelCap    = 500
	massCreatePacing   = 600 * time.Millisecond
	massCreateRetryGap = 2 * time.Second
	massProgressEvery  = 10
)

type massCreateParams struct {
	Count      int
	Start      int
	Padding    int
	Base       string
	Voice      bool
	CategoryID string
}

// normalizeMassCreate applies defaults and bounds. Padding defaults to the
// width of the last number in the run.
func normalizeMassCreate(p massCreateParams) (massCreateParams, error) {
	if p.Count < 1 || p.Count > massCreateMax {
		return p, fmt.Errorf("count must be between 1 and %d", massCreateMax)
	}
	if p.Start < 0 {
		return p, errors.New("start must not be negative")
	}
	if p.Start == 0 {
		p.Start = 1
	}
	if p.Padding <= 0 {
		p.Padding = len(strconv.Itoa(p.Start + p.Count - 1))
	}
	return p, nil
}

// massNames generates the channel names for a run.
func massNames(base string, start, count, padding int) []string {
	names := make([]string, count)
	for i := 0; i < count; i++ {
		number := strconv.Itoa(start + i)
		for len(number) < padding {
			number = "0" + number
		}
		names[i] = base + number
	}
	return names
}

func (b *Bot) handleMassCreateCommand(session *discordgo.Session, interaction *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	opts := optionMap(options)
	params := massCreateParams{Count: int(opts["count"].IntValue())}
	if opt, ok := opts["base"]; ok {
		params.Base = opt.StringValue()
	}
	if opt, ok := opts["start"]; ok {
		params.Start = int(opt.IntValue())
	}
	if opt, ok := opts["padding"]; ok {
		params.Padding = int(opt.IntValue())
	}
	if opt, ok := opts["kind"]; ok {
		params.Voice = opt.StringValue() == "voice"
	}
	if opt, ok := opts["category"]; ok {
		params.CategoryID = opt.ChannelValue(nil).ID
	}
	b.startMassCreate(session, interaction, params)
}

func (b *Bot) openMassCreateModal(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: "masscreate",
			Title:    "Create channels",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{CustomID: "count", Label: "How many (1-500)", Style: discordgo.TextInputShort, Required: true},
				}},
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{CustomID: "base", Label: "Base name (optional)", Style: discordgo.TextInputShort},
				}},
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{CustomID: "start", Label: "First number (default 1)", Style: discordgo.TextInputShort},
				}},
			},
		},
	})
}

func (b *Bot) handleModal(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	data := interaction.ModalSubmitData()
	if data.CustomID != "masscreate" {
		return
	}
	if !b.canManage(interaction) {
		b.respond(session, interaction, "You need Manage Channels to do that.", true)
		return
	}

	var params massCreateParams
	for _, row := range data.Components {
		actions, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, comp := range actions.Components {
			input, ok := comp.(*discordgo.TextInput)
			if !ok {
				continue
			}
			switch input.CustomID {
			case "count":
				params.Count, _ = strconv.Atoi(input.Value)
			case "base":
				params.Base = input.Value
			case "start":
				params.Start, _ = strconv.Atoi(input.Value)
			}
		}
	}
	b.startMassCreate(session, interaction, params)
}

func (b *Bot) startMassCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate, params massCreateParams) {
	params, err := normalizeMassCreate(params)
	if err != nil {
		b.respond(session, interaction, err.Error(), true)
		return
	}

	guild, gerr := session.State.Guild(interaction.GuildID)
	if gerr == nil && len(guild.Channels)+params.Count > guildChannelCap {
		b.respond(session, interaction,
			fmt.Sprintf("That would exceed the %d channel limit (%d exist).", guildChannelCap, len(guild.Channels)),
			true)
		return
	}

	if params.CategoryID != "" {
		category, cerr := session.Channel(params.CategoryID)
		if cerr != nil || category.Type != discordgo.ChannelTypeGuildCategory || category.GuildID != interaction.GuildID {
			b.respond(session, interaction, "That category does not exist in this server.", true)
			return
		}
	}

	b.respond(session, interaction, fmt.Sprintf("Creating %d channels…", params.Count), true)
	go b.runMassCreate(session, interaction, params)
}

func (b *Bot) runMassCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate, params massCreateParams) {
	kind := discordgo.ChannelTypeGuildText
	if params.Voice {
		kind = discordgo.ChannelTypeGuildVoice
	}

	created := 0
	failed := 0
	names := massNames(params.Base, params.Start, params.Count, params.Padding)
	for i, name := range names {
		data := discordgo.GuildChannelCreateData{
			Name:     name,
			Type:     kind,
			ParentID: params.CategoryID,
		}
		_, err := session.GuildChannelCreateComplex(interaction.GuildID, data)
		if err != nil {
			time.Sleep(massCreateRetryGap)
			_, err = session.GuildChannelCreateComplex(interaction.GuildID, data)
		}
		if err != nil {
			failed++
			b.logger.Warn("channel create failed",
				zap.String("guild", interaction.GuildID),
				zap.String("name", name),
				zap.Error(err))
		} else {
			created++
			if b.metrics != nil {
				b.metrics.ChannelsCreated.Inc()
			}
		}

		if (i+1)%massProgressEvery == 0 {
			content := fmt.Sprintf("Creating channels… %d/%d", i+1, params.Count)
			_, _ = session.InteractionResponseEdit(interaction.Interaction, &discordgo.WebhookEdit{Content: &content})
		}
		if i < len(names)-1 {
			time.Sleep(massCreatePacing)
		}
	}

	summary := fmt.Sprintf("Created %d channels.", created)
	if failed > 0 {
		summary = fmt.Sprintf("Created %d channels, %d failed.", created, failed)
	}
	if _, err := session.InteractionResponseEdit(interaction.Interaction, &discordgo.WebhookEdit{Content: &summary}); err != nil {
		b.tempNotice(interaction.ChannelID, summary)
	}
}
