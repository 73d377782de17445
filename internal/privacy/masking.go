package privacy

import (
	"strings"

	"watgbridge/internal/constants"
)

// MaskPhoneNumber masks a phone number showing only the last 4 digits
// Example: "+1234567890" -> "+******7890"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	if strings.HasPrefix(phone, "+") {
		if len(phone) == 1 {
			return phone
		}
		if len(phone) <= constants.DefaultPhoneMaskLength+1 {
			return "+" + strings.Repeat("*", len(phone)-1)
		}
		return "+" + strings.Repeat("*", len(phone)-constants.DefaultPhoneMaskLength-1) + phone[len(phone)-constants.DefaultPhoneMaskLength:]
	}

	return maskString(phone, constants.DefaultPhoneMaskLength)
}

// MaskJID masks a WhatsApp JID, keeping the domain suffix readable
// Example: "1234567890@s.whatsapp.net" -> "******7890@s.whatsapp.net"
func MaskJID(jid string) string {
	if jid == "" {
		return ""
	}

	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return maskString(jid[:i], constants.DefaultPhoneMaskLength) + jid[i:]
	}
	return maskString(jid, constants.DefaultPhoneMaskLength)
}

// MaskMessageID shortens a gateway message ID, masking any embedded JID
// Example: "true_1234567890@s.whatsapp.net_A1B2C3D4" -> "true_******7890@s.whatsapp.net_****C3D4"
func MaskMessageID(messageID string) string {
	if messageID == "" {
		return ""
	}

	parts := strings.Split(messageID, "_")
	if len(parts) >= 3 {
		return parts[0] + "_" + MaskJID(parts[1]) + "_" + maskString(strings.Join(parts[2:], "_"), constants.DefaultPhoneMaskLength)
	}

	return maskString(messageID, constants.DefaultMessageIDLength)
}

// MaskContactName hides a contact name entirely, keeping only its length class
func MaskContactName(name string) string {
	if name == "" {
		return ""
	}
	return "[name]"
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}
	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}
