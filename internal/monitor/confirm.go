package monitor

import "go.uber.org/zap"

type ConfirmOutcome int

const (
	ConfirmOK ConfirmOutcome = iota
	ConfirmAlreadyConfirmed
	ConfirmNothing
	ConfirmPreserved
)

type ConfirmResult struct {
	Outcome     ConfirmOutcome
	ConfirmedBy string
}

// Confirm marks the live or preserved alert for a channel as handled.
// fallbackGuildID is used when the channel is no longer in any monitored
// list, which happens for preserved alerts.
func (e *Engine) Confirm(channelID, fallbackGuildID, user string) ConfirmResult {
	guildID := e.guilds.GuildFor(channelID)
	if guildID == "" {
		guildID = fallbackGuildID
	}
	lock := e.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	rec, ok := e.monitors.Get(channelID)
	if !ok {
		return e.confirmPreserved(channelID, guildID, user)
	}
	if rec.Confirmed {
		return ConfirmResult{Outcome: ConfirmAlreadyConfirmed, ConfirmedBy: rec.ConfirmedBy}
	}

	rec.Confirmed = true
	rec.ConfirmedBy = user
	if err := e.monitors.Put(channelID, rec); err != nil {
		e.log.Warn("persist confirm failed",
			zap.String("channel", channelID), zap.Error(err))
	}
	if rec.AlertMessageID != "" {
		logChannel := e.resolveLogChannel(guildID, rec)
		if err := e.msgr.EditAlertConfirmed(logChannel, rec.AlertMessageID, user); err != nil {
			e.log.Debug("alert edit failed",
				zap.String("message", rec.AlertMessageID), zap.Error(err))
		}
	}

	if e.metrics != nil {
		e.metrics.Confirms.Inc()
	}
	if e.recorder != nil {
		e.recorder.Record(guildID, channelID, "confirm", user)
	}
	return ConfirmResult{Outcome: ConfirmOK, ConfirmedBy: user}
}

func (e *Engine) confirmPreserved(channelID, guildID, user string) ConfirmResult {
	p, ok := e.preservedFor(channelID)
	if !ok {
		return ConfirmResult{Outcome: ConfirmNothing}
	}
	if p.Confirmed {
		return ConfirmResult{Outcome: ConfirmAlreadyConfirmed, ConfirmedBy: p.ConfirmedBy}
	}

	p.Confirmed = true
	p.ConfirmedBy = user
	e.setPreserved(channelID, p)
	if err := e.msgr.EditAlertConfirmed(p.LogChannelID, p.AlertMessageID, user); err != nil {
		e.log.Debug("preserved alert edit failed",
			zap.String("message", p.AlertMessageID), zap.Error(err))
	}

	if e.metrics != nil {
		e.metrics.Confirms.Inc()
	}
	if e.recorder != nil {
		e.recorder.Record(guildID, channelID, "confirm", user)
	}
	return ConfirmResult{Outcome: ConfirmPreserved, ConfirmedBy: user}
}
