package sweep

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/jasonly027/steamsale-bot/internal/steam"
)

// rgb(107, 76, 136)
const embedColor = 0x6B4C88

func storePageURL(appID int64) string {
	return fmt.Sprintf("https://store.steampowered.com/app/%d", appID)
}

// releaseEmbed renders a "just released" alert
func releaseEmbed(app *steam.App) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s is out now!", app.Name),
		URL:         storePageURL(app.AppID),
		Description: app.Description,
		Color:       embedColor,
		Image:       &discordgo.MessageEmbedImage{URL: app.HeaderImage},
	}
}

// saleEmbed renders a discount alert
func saleEmbed(app *steam.App) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s is on sale!", app.Name),
		URL:         storePageURL(app.AppID),
		Description: app.Description,
		Color:       embedColor,
		Image:       &discordgo.MessageEmbedImage{URL: app.HeaderImage},
	}

	if app.Price != nil {
		embed.Fields = []*discordgo.MessageEmbedField{
			{
				Name:   "Discount",
				Value:  fmt.Sprintf("-%d%%", app.Price.DiscountPercent),
				Inline: true,
			},
			{
				Name:   "Price",
				Value:  fmt.Sprintf("~~%s~~ %s", app.Price.InitialFormatted, app.Price.FinalFormatted),
				Inline: true,
			},
		}
	}

	return embed
}
