package constants

// Channel names used on bus messages. Internal channels originate from
// the process itself rather than a chat platform.
const (
	ChannelTelegram = "telegram"
	ChannelDiscord  = "discord"
	ChannelCLI      = "cli"
	ChannelSystem   = "system"
	ChannelCron     = "cron"
	ChannelJobs     = "jobs"
)

var internalChannels = map[string]bool{
	ChannelCLI:    true,
	ChannelSystem: true,
	ChannelCron:   true,
	ChannelJobs:   true,
}

// IsInternalChannel reports whether messages on this channel come from
// inside the process. Internal channels bypass sender allowlists.
func IsInternalChannel(channel string) bool {
	return internalChannels[channel]
}
