package autoreply

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/cadence/pkg/types"
)

const (
	defaultMessageTemplate = "You're welcome! How can I help you today?"
	fallbackMessageReply   = "Thanks for your message! I'll get back to you soon."
	messageContextTurns    = 5
)

// replyToMessages answers the latest inbound message of each conversation
func (e *Engine) replyToMessages(ctx context.Context, c *cycle) {
	pctx, cancel := context.WithTimeout(ctx, e.cfg.PlatformTimeout)
	conversations, err := e.reader.ListConversations(pctx, c.cred)
	cancel()
	if err != nil {
		e.logger.Warn().Err(err).Str("rule_id", c.rule.ID).Msg("Failed to list conversations")
		c.pin(c.since)
		return
	}

	for i := range conversations {
		conv := &conversations[i]
		inbound, ok := latestInbound(conv, c.account.PlatformUserID)
		if !ok {
			e.skip(types.ReplyKindMessage, SkipAnswered)
			continue
		}
		if !inbound.CreatedAt.IsZero() && inbound.CreatedAt.Before(c.since) {
			continue
		}

		if reason, eligible := e.messageEligible(ctx, c, inbound); !eligible {
			e.skip(types.ReplyKindMessage, reason)
			if reason == SkipLedgerError {
				c.pin(inbound.CreatedAt)
			}
			continue
		}
		if c.remaining <= 0 {
			c.pin(inbound.CreatedAt)
			continue
		}

		e.replyToMessage(ctx, c, conv, inbound)
	}
}

// latestInbound returns the conversation's last message when it came from
// the audience. A conversation whose last turn is ours is already answered.
func latestInbound(conv *types.Conversation, ownID string) (*types.Message, bool) {
	if len(conv.Messages) == 0 {
		return nil, false
	}
	last := &conv.Messages[len(conv.Messages)-1]
	if last.SenderID == ownID {
		return nil, false
	}
	return last, true
}

// messageEligible is the comment filter keyed by message id
func (e *Engine) messageEligible(ctx context.Context, c *cycle, msg *types.Message) (string, bool) {
	if IsAIResponse(msg.Text) {
		return SkipAIResponse, false
	}
	replied, err := e.store.HasReply(ctx, msg.ID, c.account.ID)
	if err != nil {
		e.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to check reply ledger")
		return SkipLedgerError, false
	}
	if replied {
		return SkipAlreadyReplied, false
	}
	return "", true
}

func (e *Engine) replyToMessage(ctx context.Context, c *cycle, conv *types.Conversation, inbound *types.Message) {
	text := e.composeMessageReply(ctx, c.rule, conv, inbound, c.account.PlatformUserID)

	pctx, cancel := context.WithTimeout(ctx, e.cfg.PlatformTimeout)
	messageID, err := e.publisher.SendMessage(pctx, c.cred, conv.ID, inbound.SenderID, text)
	cancel()
	if err != nil {
		e.fail(ctx, c, types.ReplyKindMessage, inbound.ID, inbound.CreatedAt, err)
		return
	}

	e.commit(ctx, c, &types.ReplyRecord{
		TargetID:  inbound.ID,
		AccountID: c.account.ID,
		RuleID:    c.rule.ID,
		Kind:      types.ReplyKindMessage,
		ReplyID:   messageID,
		Text:      text,
		RepliedAt: e.clock.Now().UTC(),
	})
}

// composeMessageReply generates a conversational reply using the last few
// turns as context, cut to MaxMessageLength
func (e *Engine) composeMessageReply(ctx context.Context, rule *types.AutomationRule, conv *types.Conversation, inbound *types.Message, ownID string) string {
	template := rule.ReplyTemplate
	if strings.TrimSpace(template) == "" {
		template = defaultMessageTemplate
	}
	if !rule.UseAI {
		return truncate(template, e.cfg.MaxMessageLength)
	}

	history, firstContact := conversationContext(conv, ownID)
	name := displayName(inbound.SenderName)

	gctx, cancel := context.WithTimeout(ctx, e.cfg.GenerateTimeout)
	defer cancel()
	text, err := e.generator.Generate(gctx, messagePrompt(template, name, inbound.Text, history), history)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			e.logger.Warn().Err(err).Str("conversation_id", conv.ID).Msg("Message generation failed, using fallback")
		}
		return fallbackMessageReply
	}

	text = strings.TrimSpace(text)
	if firstContact && inbound.SenderName != "" && !strings.Contains(strings.ToLower(text), strings.ToLower(inbound.SenderName)) {
		text = fmt.Sprintf("Hi %s! %s", inbound.SenderName, text)
	}
	return truncate(text, e.cfg.MaxMessageLength)
}

// conversationContext renders the last turns as "User: ..." / "AI: ..."
// and reports whether the inbound message is the audience's first turn
func conversationContext(conv *types.Conversation, ownID string) (string, bool) {
	turns := conv.Messages
	if len(turns) > messageContextTurns {
		turns = turns[len(turns)-messageContextTurns:]
	}

	inbound := 0
	for _, msg := range conv.Messages {
		if msg.SenderID != ownID {
			inbound++
		}
	}

	parts := make([]string, 0, len(turns))
	for _, msg := range turns {
		speaker := "User"
		if msg.SenderID == ownID {
			speaker = "AI"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", speaker, msg.Text))
	}
	return strings.Join(parts, " | "), inbound <= 1
}

func messagePrompt(template, name, text, history string) string {
	return fmt.Sprintf(
		"You are a helpful assistant for a business page. %s sent a direct message: %q\n"+
			"Previous conversation: %s\n"+
			"Reply naturally and helpfully, address them by name if appropriate, "+
			"use the template as a guide: %q. Stay under 200 characters and use emojis sparingly.",
		name, text, history, template,
	)
}
