package flow

import (
	"fmt"
	"strings"

	"github.com/go-telegram/bot/models"

	"tg_airtime_bot/internal/callbacks"
	"tg_airtime_bot/internal/config"
	"tg_airtime_bot/internal/domain"
)

const (
	joinPromptText = "🪬 Verification Status: ⚠️ You must join the following channels to use this bot and verify you're not a robot 🚨\n\n" +
		"Click the buttons below to join, then press *'✅ Verify'*."
	verifyButtonText = "✅ Verify"
	notJoinedAlert   = "⚠️ You haven't joined all the required channels yet!"
	verifiedText     = "✅ You are verified! You can now use the bot."

	menuText = "📱 Welcome to the Airtime Request Bot!\n\n" +
		"This bot allows you to request free airtime (demo version).\n\n" +
		"Select your network below to get started:"

	requestFailedText = "❌ Your airtime request could not be completed. Please try again."

	joinDateLayout = "2006-01-02 15:04:05"
)

func joinPromptKeyboard(channels []config.Channel) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(channels)+1)
	for _, ch := range channels {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: "Join " + ch.Username, URL: ch.JoinLink},
		})
	}
	rows = append(rows, []models.InlineKeyboardButton{
		{Text: verifyButtonText, CallbackData: callbacks.Verify},
	})

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func menuKeyboard() *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(domain.Networks))
	for _, network := range domain.Networks {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: "📱 " + network.Label() + " Airtime", CallbackData: callbacks.Airtime(network)},
		})
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func resultKeyboard(network domain.Network) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{
		{{Text: "🔄 Request Again", CallbackData: callbacks.Airtime(network)}},
		{{Text: "📊 My Stats", CallbackData: callbacks.MyStats}},
	}}
}

func resultText(req domain.AirtimeRequest) string {
	var b strings.Builder
	b.WriteString("🎉 Airtime Request Successful!\n\n")
	fmt.Fprintf(&b, "📱 Network: %s\n", req.Network)
	fmt.Fprintf(&b, "💰 Amount: %d Naira\n", req.Amount)
	fmt.Fprintf(&b, "📞 Phone: %s (for demonstration)\n", req.PhoneNumber)
	fmt.Fprintf(&b, "🧾 Reference: %s\n\n", req.Reference)
	b.WriteString("⚠️ Note: This is a demo. No actual airtime will be sent.")
	return b.String()
}

func profileText(user domain.User, requests int64) string {
	username := user.Username
	if username == "" {
		username = "N/A"
	}

	joined := "N/A"
	if !user.JoinDate.IsZero() {
		joined = user.JoinDate.UTC().Format(joinDateLayout)
	}

	return fmt.Sprintf("👤 User Info:\n\n"+
		"🆔 User ID: %d\n"+
		"🤵 Name: %s\n"+
		"👤 Username: %s\n"+
		"📊 Airtime Requests: %d\n"+
		"⏳ Joined: %s",
		user.UserID, user.FirstName, username, requests, joined)
}
