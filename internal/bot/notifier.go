package bot

import (
	"github.com/bwmarrin/discordgo"
)

// ChannelNotifier delivers sweep alerts through the bot's Discord session
type ChannelNotifier struct {
	session *discordgo.Session
}

// Send posts the embed to the channel
func (n *ChannelNotifier) Send(channelID string, embed *discordgo.MessageEmbed) error {
	_, err := n.session.ChannelMessageSendEmbed(channelID, embed)
	return err
}
