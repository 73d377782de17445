package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"watgbridge/internal/features"
	"watgbridge/internal/validation"
	tgtypes "watgbridge/pkg/telegram/types"
	watypes "watgbridge/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

const maxSearchResults = 10

// CommandRouter implements the operator console. Every command replies in
// the chat it was issued from.
type CommandRouter struct {
	bridge   *Bridge
	topics   *TopicManager
	contacts *ContactService
	flags    *features.FlagManager
	logger   *logrus.Logger

	startedAt time.Time
}

func NewCommandRouter(bridge *Bridge, topics *TopicManager, contacts *ContactService, flags *features.FlagManager, logger *logrus.Logger) *CommandRouter {
	return &CommandRouter{
		bridge:    bridge,
		topics:    topics,
		contacts:  contacts,
		flags:     flags,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handle dispatches one slash command from the operator.
func (cr *CommandRouter) Handle(ctx context.Context, msg *tgtypes.Message) error {
	command, args := splitCommand(msg.Text)
	cr.logger.WithFields(logrus.Fields{
		"command": command,
		"chat":    msg.Chat.ID,
	}).Info("Handling operator command")

	var reply string
	switch command {
	case "start", "help":
		reply = cr.helpText()
	case "status":
		reply = cr.statusText()
	case "send":
		reply = cr.handleSend(ctx, args)
	case "searchcontact":
		reply = cr.handleSearch(args)
	case "synccontacts":
		reply = cr.handleSyncContacts(ctx)
	case "updatetopics":
		updated := cr.topics.RefreshTopicNames(ctx)
		reply = fmt.Sprintf("🔄 Updated %d topic name(s)", updated)
	case "flags":
		reply = cr.flagsText()
	case "toggle":
		reply = cr.handleToggle(args)
	default:
		reply = fmt.Sprintf("Unknown command /%s. Try /help.", command)
	}

	return cr.reply(ctx, msg, reply)
}

func (cr *CommandRouter) handleSend(ctx context.Context, args []string) string {
	if len(args) < 2 {
		return "Usage: /send <phone> <message>"
	}
	phone := phoneDigits(args[0])
	if err := validation.ValidatePhoneNumber(phone); err != nil {
		return fmt.Sprintf("❌ %v", err)
	}
	jid := phone + "@s.whatsapp.net"
	text := strings.Join(args[1:], " ")

	err := cr.bridge.relayToWhatsApp(ctx, jid, func(ctx context.Context) error {
		_, err := cr.bridge.waClient.SendText(ctx, jid, text)
		return err
	})
	if err != nil {
		return fmt.Sprintf("❌ Failed to send to +%s: %v", phone, err)
	}
	return fmt.Sprintf("✅ Sent to +%s", phone)
}

func (cr *CommandRouter) handleSearch(args []string) string {
	if len(args) == 0 {
		return "Usage: /searchcontact <name or number>"
	}
	query := strings.Join(args, " ")
	results := cr.contacts.Search(query)
	if len(results) == 0 {
		return fmt.Sprintf("No contacts matching %q", query)
	}
	if len(results) > maxSearchResults {
		results = results[:maxSearchResults]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Contacts matching %q:\n", query)
	for _, r := range results {
		fmt.Fprintf(&sb, "• %s (+%s)\n", r.Name, r.Phone)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (cr *CommandRouter) handleSyncContacts(ctx context.Context) string {
	fromDirectory, err := cr.contacts.SyncFromDirectory(ctx)
	if err != nil {
		cr.logger.WithError(err).Warn("Contact directory sync failed")
	}
	fromChats, chatErr := cr.contacts.SyncFromChatList(ctx)
	if chatErr != nil {
		cr.logger.WithError(chatErr).Warn("Chat list sync failed")
	}
	if err != nil && chatErr != nil {
		return "❌ Contact sync failed, see logs"
	}
	if fromDirectory+fromChats > 0 {
		cr.topics.RefreshTopicNames(ctx)
	}
	return fmt.Sprintf("📇 Synced %d contact name(s) (%d from directory, %d from chat list)",
		fromDirectory+fromChats, fromDirectory, fromChats)
}

func (cr *CommandRouter) handleToggle(args []string) string {
	if len(args) != 1 {
		return "Usage: /toggle <flag>"
	}
	enabled, err := cr.flags.Toggle(args[0])
	if err != nil {
		return fmt.Sprintf("❌ %v", err)
	}
	return fmt.Sprintf("%s is now %s", args[0], onOff(enabled))
}

func (cr *CommandRouter) statusText() string {
	var sb strings.Builder
	sb.WriteString("📊 Bridge status\n")
	if cr.bridge.waClient.Connected() {
		sb.WriteString("WhatsApp: connected ✅\n")
	} else {
		sb.WriteString("WhatsApp: disconnected ❌\n")
	}

	chats := cr.bridge.ChatMappings()
	groups := 0
	for _, c := range chats {
		if watypes.IsGroupJID(c.WhatsAppJID) {
			groups++
		}
	}
	fmt.Fprintf(&sb, "Mapped chats: %d (%d groups)\n", len(chats), groups)
	fmt.Fprintf(&sb, "Known contacts: %d\n", cr.bridge.ContactCount())
	fmt.Fprintf(&sb, "Uptime: %s", time.Since(cr.startedAt).Round(time.Second))
	return sb.String()
}

func (cr *CommandRouter) flagsText() string {
	var sb strings.Builder
	sb.WriteString("Feature flags:\n")
	for _, f := range cr.flags.ListFlags() {
		fmt.Fprintf(&sb, "• %s: %s\n", f.Name, onOff(f.Enabled))
	}
	sb.WriteString("Use /toggle <flag> to flip one.")
	return sb.String()
}

func (cr *CommandRouter) helpText() string {
	return strings.Join([]string{
		"Available commands:",
		"/status - connection and mapping overview",
		"/send <phone> <message> - message a number directly",
		"/searchcontact <query> - look up known contacts",
		"/synccontacts - pull contact names from the gateway",
		"/updatetopics - refresh topic names from contacts",
		"/flags - list feature flags",
		"/toggle <flag> - flip a feature flag",
		"/help - this text",
	}, "\n")
}

func (cr *CommandRouter) reply(ctx context.Context, msg *tgtypes.Message, text string) error {
	opts := &tgtypes.SendOptions{MessageThreadID: msg.MessageThreadID}
	if _, err := cr.bridge.tgClient.SendMessage(ctx, msg.Chat.ID, text, opts); err != nil {
		return fmt.Errorf("failed to reply to command: %w", err)
	}
	return nil
}

// splitCommand parses "/cmd@bot arg1 arg2" into its name and arguments.
func splitCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	command := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(command, '@'); i >= 0 {
		command = command[:i]
	}
	return strings.ToLower(command), fields[1:]
}

func onOff(enabled bool) string {
	if enabled {
		return "enabled ✅"
	}
	return "disabled ⛔"
}
