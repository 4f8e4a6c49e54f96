// Package router turns raw Telegram updates into typed events and hands them
// to the flow engine or the admin service, one user at a time.
package router

import (
	"strings"

	"github.com/go-telegram/bot/models"

	"tg_airtime_bot/internal/callbacks"
	"tg_airtime_bot/internal/domain"
)

// Origin identifies the sender and the chat of an event.
type Origin struct {
	UpdateID   int64
	Profile    domain.Profile
	ChatID     int64
	CallbackID string
	MessageID  int
}

// Event is one decoded update. The concrete types below are exhaustive.
type Event interface {
	Source() Origin
	Kind() string
}

// Source returns the origin embedded in every event.
func (o Origin) Source() Origin { return o }

type (
	StartCommand   struct{ Origin }
	ProfileCommand struct{ Origin }
	StatsCommand   struct{ Origin }

	BroadcastCommand struct {
		Origin
		Message string
	}

	VerifyRequested struct{ Origin }

	FeatureSelected struct {
		Origin
		Network domain.Network
	}

	// StatsRequested is the "My Stats" button.
	StatsRequested struct{ Origin }

	// Ignored is anything the bot does not act on.
	Ignored struct {
		Origin
		Reason string
	}
)

func (StartCommand) Kind() string     { return "start" }
func (ProfileCommand) Kind() string   { return "profile" }
func (StatsCommand) Kind() string     { return "stats" }
func (BroadcastCommand) Kind() string { return "broadcast" }
func (VerifyRequested) Kind() string  { return "verify" }
func (FeatureSelected) Kind() string  { return "feature" }
func (StatsRequested) Kind() string   { return "my_stats" }
func (Ignored) Kind() string          { return "ignored" }

// Decode classifies update. It never returns nil; unsupported updates decode
// to Ignored.
func Decode(update *models.Update) Event {
	if update == nil {
		return Ignored{Reason: "empty update"}
	}

	switch {
	case update.Message != nil:
		return decodeMessage(update.ID, update.Message)
	case update.CallbackQuery != nil:
		return decodeCallback(update.ID, update.CallbackQuery)
	default:
		return Ignored{Origin: Origin{UpdateID: update.ID}, Reason: "unsupported update type"}
	}
}

func decodeMessage(updateID int64, msg *models.Message) Event {
	origin := Origin{
		UpdateID: updateID,
		Profile:  profileOf(msg.From),
		ChatID:   msg.Chat.ID,
	}

	if origin.Profile.UserID == 0 {
		return Ignored{Origin: origin, Reason: "message without sender"}
	}

	command, args, ok := splitCommand(msg.Text)
	if !ok {
		return Ignored{Origin: origin, Reason: "not a command"}
	}

	switch command {
	case "start":
		return StartCommand{Origin: origin}
	case "profile":
		return ProfileCommand{Origin: origin}
	case "stats":
		return StatsCommand{Origin: origin}
	case "broadcast":
		return BroadcastCommand{Origin: origin, Message: args}
	default:
		return Ignored{Origin: origin, Reason: "unknown command " + command}
	}
}

func decodeCallback(updateID int64, query *models.CallbackQuery) Event {
	origin := Origin{
		UpdateID:   updateID,
		Profile:    profileOf(&query.From),
		CallbackID: query.ID,
	}
	if msg := query.Message.Message; msg != nil {
		origin.ChatID = msg.Chat.ID
		origin.MessageID = msg.ID
	} else if inaccessible := query.Message.InaccessibleMessage; inaccessible != nil {
		origin.ChatID = inaccessible.Chat.ID
		origin.MessageID = inaccessible.MessageID
	}
	if origin.ChatID == 0 {
		origin.ChatID = origin.Profile.UserID
	}

	data := strings.TrimSpace(query.Data)
	switch data {
	case callbacks.Verify:
		return VerifyRequested{Origin: origin}
	case callbacks.MyStats:
		return StatsRequested{Origin: origin}
	}

	if network, ok := callbacks.ParseAirtime(data); ok {
		return FeatureSelected{Origin: origin, Network: network}
	}

	return Ignored{Origin: origin, Reason: "unknown callback " + data}
}

// splitCommand parses "/cmd@bot args". The command is lower-cased; args keep
// their inner formatting.
func splitCommand(text string) (string, string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}

	head, rest, _ := strings.Cut(text[1:], " ")
	if i := strings.IndexAny(head, "\n\t"); i >= 0 {
		rest = head[i+1:] + " " + rest
		head = head[:i]
	}
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}

	return strings.ToLower(head), strings.TrimSpace(rest), true
}

func profileOf(user *models.User) domain.Profile {
	if user == nil {
		return domain.Profile{}
	}

	return domain.Profile{
		UserID:    user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Username:  user.Username,
	}
}

// senderID returns the user an update belongs to, 0 when there is none.
func senderID(update *models.Update) int64 {
	switch {
	case update == nil:
		return 0
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID
	case update.CallbackQuery != nil:
		return update.CallbackQuery.From.ID
	default:
		return 0
	}
}
