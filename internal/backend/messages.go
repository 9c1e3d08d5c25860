package backend

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// MessageText joins the text parts of a message, skipping images and files
func MessageText(msg openai.Message) string {
	parts := make([]string, 0, len(msg.Content))
	for _, content := range msg.Content {
		if content.Text != nil {
			parts = append(parts, content.Text.Value)
		}
	}
	return strings.Join(parts, "\n")
}

// FormatMessage renders a message as "Role: content"
func FormatMessage(msg openai.Message) string {
	return RoleLabel(msg.Role) + ": " + MessageText(msg)
}

// RoleLabel capitalises the first letter of a role name
func RoleLabel(role string) string {
	if role == "" {
		return role
	}
	return strings.ToUpper(role[:1]) + role[1:]
}
