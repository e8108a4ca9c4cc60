package ml

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Chat roles accepted in a history
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// FallbackReply is returned to the user when the advisor cannot answer
const FallbackReply = "Sorry, I am unable to process your request at the moment."

const emptyReply = "I couldn't generate a response."

// ChatTurn is one message of a customs conversation
type ChatTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Chatter runs one turn of a conversation
type Chatter interface {
	Chat(ctx context.Context, systemInstruction string, history []ChatTurn, message string) (string, error)
}

// Advisor answers traveller questions about bringing food into a country
type Advisor struct {
	chat Chatter
}

// NewAdvisor creates an advisor backed by chat
func NewAdvisor(chat Chatter) *Advisor {
	return &Advisor{chat: chat}
}

// Ask returns the advisor's reply. Failures are logged and answered with
// FallbackReply, so the caller always has something to show.
func (a *Advisor) Ask(ctx context.Context, history []ChatTurn, message, country string) string {
	message = strings.TrimSpace(message)
	if message == "" {
		return ""
	}
	if a == nil || a.chat == nil {
		return FallbackReply
	}

	reply, err := a.chat.Chat(ctx, systemInstruction(country), sanitizeHistory(history), message)
	if err != nil {
		log.Warn().Err(err).Str("country", country).Msg("Customs advisor failed")
		return FallbackReply
	}
	if strings.TrimSpace(reply) == "" {
		return emptyReply
	}
	return reply
}

func systemInstruction(country string) string {
	return fmt.Sprintf(`You are a helpful customs expert assisting a traveler entering %[1]s.
Provide accurate info on food import regulations, prohibited items, allowances, and declaring goods for %[1]s.
Be concise, friendly, and practical.`, country)
}

// sanitizeHistory drops empty turns and unknown roles
func sanitizeHistory(history []ChatTurn) []ChatTurn {
	out := make([]ChatTurn, 0, len(history))
	for _, turn := range history {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		if turn.Role != RoleUser && turn.Role != RoleModel {
			continue
		}
		out = append(out, turn)
	}
	return out
}
