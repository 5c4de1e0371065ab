package autoreply

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cuemby/cadence/pkg/types"
)

// Skip reasons, also used as metric outcomes
const (
	SkipOwnComment        = "own_comment"
	SkipAIResponse        = "ai_response"
	SkipAlreadyReplied    = "already_replied"
	SkipForeignThread     = "foreign_thread"
	SkipParentUnavailable = "parent_unavailable"
	SkipLedgerError       = "ledger_error"
	SkipAnswered          = "answered"
)

// Verdict is the outcome of the eligibility filter
type Verdict struct {
	Reply  bool
	Reason string         // Skip reason when Reply is false
	Parent *types.Comment // Our prior reply when continuing a thread
}

// ShouldReply applies the eligibility filter to one comment: never our own
// comment, never text that looks like an auto-reply, never a comment
// already in the reply ledger. On threaded platforms a reply comment is
// only eligible when it answers our own prior auto-reply.
func (e *Engine) ShouldReply(ctx context.Context, account *types.Account, cred types.Credential, comment *types.Comment) Verdict {
	if comment.AuthorID != "" && comment.AuthorID == account.PlatformUserID {
		return Verdict{Reason: SkipOwnComment}
	}
	if IsAIResponse(comment.Text) {
		return Verdict{Reason: SkipAIResponse}
	}

	replied, err := e.store.HasReply(ctx, comment.ID, account.ID)
	if err != nil {
		e.logger.Error().Err(err).Str("comment_id", comment.ID).Msg("Failed to check reply ledger")
		return Verdict{Reason: SkipLedgerError}
	}
	if replied {
		return Verdict{Reason: SkipAlreadyReplied}
	}

	if !account.Platform.Threaded() || comment.ParentID == "" {
		return Verdict{Reply: true}
	}

	pctx, cancel := context.WithTimeout(ctx, e.cfg.PlatformTimeout)
	defer cancel()
	parent, err := e.reader.GetComment(pctx, cred, comment.ParentID)
	if err != nil {
		e.logger.Warn().Err(err).Str("comment_id", comment.ID).Str("parent_id", comment.ParentID).Msg("Could not load parent comment")
		return Verdict{Reason: SkipParentUnavailable}
	}
	if parent.AuthorID == account.PlatformUserID && IsAIResponse(parent.Text) {
		return Verdict{Reply: true, Parent: parent}
	}
	return Verdict{Reason: SkipForeignThread}
}

// replyToComments walks the rule's posts in shuffled order until the
// budget is spent
func (e *Engine) replyToComments(ctx context.Context, c *cycle) {
	postIDs := e.targetPosts(ctx, c)
	if len(postIDs) == 0 {
		e.logger.Debug().Str("rule_id", c.rule.ID).Msg("No posts to monitor for rule")
		return
	}
	e.shuffle(postIDs)

	for _, postID := range postIDs {
		if c.remaining <= 0 {
			// Unread posts may hold comments older than the new watermark
			c.pin(c.since)
			break
		}

		pctx, cancel := context.WithTimeout(ctx, e.cfg.PlatformTimeout)
		comments, err := e.reader.ListComments(pctx, c.cred, postID, c.since)
		cancel()
		if err != nil {
			e.logger.Warn().Err(err).Str("rule_id", c.rule.ID).Str("post_id", postID).Msg("Failed to list comments")
			c.pin(c.since)
			continue
		}

		candidates := recentComments(comments, c)
		if c.account.Platform.Threaded() {
			candidates = latestPerThread(candidates)
		}

		for _, comment := range candidates {
			verdict := e.ShouldReply(ctx, c.account, c.cred, comment)
			if !verdict.Reply {
				e.skip(types.ReplyKindComment, verdict.Reason)
				if verdict.Reason == SkipLedgerError || verdict.Reason == SkipParentUnavailable {
					c.pin(comment.CreatedAt)
				}
				continue
			}
			if c.remaining <= 0 {
				c.pin(comment.CreatedAt)
				continue
			}
			e.replyToComment(ctx, c, comment, verdict.Parent)
		}
	}
}

// targetPosts resolves the rule's post list: its own selection, then the
// account's published posts in the ledger, then the platform's list
func (e *Engine) targetPosts(ctx context.Context, c *cycle) []string {
	if len(c.rule.TargetPostIDs) > 0 {
		return append([]string(nil), c.rule.TargetPostIDs...)
	}

	ids, err := e.store.ListPublishedPlatformIDs(ctx, c.account.ID)
	if err != nil {
		e.logger.Warn().Err(err).Str("rule_id", c.rule.ID).Msg("Failed to list published posts")
	}
	if len(ids) > 0 {
		return ids
	}

	pctx, cancel := context.WithTimeout(ctx, e.cfg.PlatformTimeout)
	defer cancel()
	ids, err = e.reader.ListPosts(pctx, c.cred)
	if err != nil {
		e.logger.Warn().Err(err).Str("rule_id", c.rule.ID).Msg("Failed to list platform posts")
		return nil
	}
	return ids
}

// recentComments keeps comments created at or after since, oldest first.
// Comments without a usable timestamp are kept.
func recentComments(comments []types.Comment, c *cycle) []*types.Comment {
	out := make([]*types.Comment, 0, len(comments))
	for i := range comments {
		comment := &comments[i]
		if !comment.CreatedAt.IsZero() && comment.CreatedAt.Before(c.since) {
			continue
		}
		out = append(out, comment)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// latestPerThread keeps only the most recent comment of each thread
func latestPerThread(comments []*types.Comment) []*types.Comment {
	latest := make(map[string]*types.Comment)
	var order []string
	for _, comment := range comments {
		thread := comment.ThreadID()
		current, ok := latest[thread]
		if !ok {
			order = append(order, thread)
		}
		if !ok || !comment.CreatedAt.Before(current.CreatedAt) {
			latest[thread] = comment
		}
	}

	out := make([]*types.Comment, 0, len(order))
	for _, thread := range order {
		out = append(out, latest[thread])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (e *Engine) replyToComment(ctx context.Context, c *cycle, comment *types.Comment, parent *types.Comment) {
	text := e.composeCommentReply(ctx, c.rule, comment, parent)

	pctx, cancel := context.WithTimeout(ctx, e.cfg.PlatformTimeout)
	replyID, err := e.publisher.Reply(pctx, c.cred, comment.ID, text)
	cancel()
	if err != nil {
		e.fail(ctx, c, types.ReplyKindComment, comment.ID, comment.CreatedAt, err)
		return
	}

	e.commit(ctx, c, &types.ReplyRecord{
		TargetID:  comment.ID,
		AccountID: c.account.ID,
		RuleID:    c.rule.ID,
		Kind:      types.ReplyKindComment,
		ReplyID:   replyID,
		Text:      text,
		RepliedAt: e.clock.Now().UTC(),
	})
}

// composeCommentReply generates the reply text and guarantees it mentions
// the commenter
func (e *Engine) composeCommentReply(ctx context.Context, rule *types.AutomationRule, comment *types.Comment, parent *types.Comment) string {
	name := comment.AuthorName

	if !rule.UseAI {
		if strings.TrimSpace(rule.ReplyTemplate) == "" {
			return fallbackCommentReply(name)
		}
		return EnsureMention(rule.ReplyTemplate, name)
	}

	background := fmt.Sprintf("Comment by %s: %s", displayName(name), comment.Text)
	if parent != nil {
		background += fmt.Sprintf(" | Conversation context: AI: %s | %s: %s", parent.Text, displayName(name), comment.Text)
	}

	gctx, cancel := context.WithTimeout(ctx, e.cfg.GenerateTimeout)
	defer cancel()
	text, err := e.generator.Generate(gctx, commentPrompt(rule.ReplyTemplate, displayName(name), comment.Text, parent != nil), background)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			e.logger.Warn().Err(err).Str("comment_id", comment.ID).Msg("Reply generation failed, using fallback")
		}
		return fallbackCommentReply(name)
	}
	return EnsureMention(strings.TrimSpace(text), name)
}

func commentPrompt(template, name, text string, continuing bool) string {
	var b strings.Builder
	b.WriteString("Write a friendly, engaging reply to this social media comment. ")
	b.WriteString("Mention the commenter by name, stay relevant to what they said, ")
	b.WriteString("keep it under 200 characters and use emojis sparingly.\n")
	if template != "" {
		fmt.Fprintf(&b, "Template guide: %s\n", template)
	}
	if continuing {
		b.WriteString("This continues a conversation with our earlier reply, so keep it natural.\n")
	}
	fmt.Fprintf(&b, "Commenter: %s\nComment: %s", name, text)
	return b.String()
}

func fallbackCommentReply(name string) string {
	if name == "" {
		return "Thank you for your comment! We appreciate your engagement."
	}
	return fmt.Sprintf("@%s Thank you for your comment! We appreciate your engagement.", name)
}
