package privacy

import (
	"strings"
)

// MaskPhoneNumber masks a phone number showing only the last 4 digits
// Example: "+1234567890" -> "+******7890"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	// Handle + prefix numbers specially
	if strings.HasPrefix(phone, "+") {
		if len(phone) == 1 { // Just "+"
			return phone
		}
		if len(phone) <= 5 { // "+1234" or shorter
			return "+" + strings.Repeat("*", len(phone)-1)
		}
		return "+" + strings.Repeat("*", len(phone)-5) + phone[len(phone)-4:]
	}

	// For numbers without + prefix
	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

// MaskJID masks a WhatsApp JID to show structure but hide the number
// Example: "1234567890@s.whatsapp.net" -> "******7890@s.whatsapp.net"
func MaskJID(jid string) string {
	if jid == "" {
		return ""
	}

	if strings.Contains(jid, "@") {
		parts := strings.Split(jid, "@")
		if len(parts) >= 2 {
			numberPart := parts[0]
			domainPart := "@" + strings.Join(parts[1:], "@")

			if len(numberPart) <= 4 {
				return strings.Repeat("*", len(numberPart)) + domainPart
			}
			return strings.Repeat("*", len(numberPart)-4) + numberPart[len(numberPart)-4:] + domainPart
		}
	}

	// For other formats, mask most of it
	if len(jid) <= 4 {
		return strings.Repeat("*", len(jid))
	}
	return strings.Repeat("*", len(jid)-4) + jid[len(jid)-4:]
}

// MaskMessageID masks a provider message ID while preserving some structure
// for debugging
func MaskMessageID(messageID string) string {
	if messageID == "" {
		return ""
	}

	// Provider message IDs can embed a JID: "true_1234@s.whatsapp.net_ABCDEF"
	if strings.Contains(messageID, "_") {
		parts := strings.Split(messageID, "_")
		if len(parts) >= 3 {
			prefix := parts[0]
			jidPart := parts[1]
			messagePart := strings.Join(parts[2:], "_")

			return prefix + "_" + MaskJID(jidPart) + "_" + maskString(messagePart, 4)
		}
	}

	return maskString(messageID, 8)
}

// MaskAPIKey masks a device API key keeping only the prefix readable
// Example: "wa_a1b2c3d4e5f6..." -> "wa_a1b2c***"
func MaskAPIKey(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	if len(apiKey) <= 8 {
		return strings.Repeat("*", len(apiKey))
	}
	return apiKey[:8] + "***"
}

// MaskSessionID masks a session identifier while keeping the prefix for
// debugging. Example: "wa_1712345678_a1b2c3" -> "wa_**********_***2c3"
func MaskSessionID(sessionID string) string {
	if sessionID == "" {
		return ""
	}

	if strings.Contains(sessionID, "_") {
		parts := strings.Split(sessionID, "_")
		if len(parts) >= 2 {
			result := parts[0]
			for i := 1; i < len(parts)-1; i++ {
				result += "_" + strings.Repeat("*", len(parts[i]))
			}
			result += "_" + maskString(parts[len(parts)-1], 3)
			return result
		}
	}

	return maskString(sessionID, 3)
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

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{})
	for k, v := range fields {
		switch k {
		case "phone", "phone_number", "from", "to":
			if s, ok := v.(string); ok {
				masked[k] = MaskPhoneNumber(s)
			} else {
				masked[k] = v
			}
		case "jid", "remote_jid", "group_id":
			if s, ok := v.(string); ok {
				masked[k] = MaskJID(s)
			} else {
				masked[k] = v
			}
		case "message_id", "provider_message_id":
			if s, ok := v.(string); ok {
				masked[k] = MaskMessageID(s)
			} else {
				masked[k] = v
			}
		case "api_key":
			if s, ok := v.(string); ok {
				masked[k] = MaskAPIKey(s)
			} else {
				masked[k] = v
			}
		case "session", "session_id":
			if s, ok := v.(string); ok {
				masked[k] = MaskSessionID(s)
			} else {
				masked[k] = v
			}
		default:
			masked[k] = v
		}
	}

	return masked
}
