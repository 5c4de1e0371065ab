/*
Package autoreply answers audience comments and direct messages on behalf
of connected accounts.

Each active AutomationRule is processed on its own, sequentially, once per
cycle. Comment rules run from ProcessAutoReplies and message rules from
ProcessMessageReplies; the two run as separate periodic tasks.

# Cycle

For one rule:

 1. Skip the rule if it reached its daily limit, or its account is missing
    or disconnected. Nothing is written in that case.
 2. Compute "since": the last execution time, the 10 minute fallback
    window on a first run, pulled back to RetryFrom when an earlier cycle
    left eligible items unanswered (bounded by RetryLookback).
 3. Resolve posts: the rule's TargetPostIDs, else the account's published
    posts in the ledger, else the platform's post list. Shuffle them so
    one busy post does not take the whole budget every cycle.
 4. Evaluate candidates oldest first and reply until the budget (3 by
    default) is spent.
 5. Write LastExecutionAt = cycle start and the new RetryFrom.

# Eligibility

ShouldReply applies, in order:

  - never our own comment
  - never text matching IsAIResponse (loop prevention)
  - never a comment already in the reply ledger
  - on threaded platforms, a reply comment only when its parent is our own
    auto-reply

Threaded platforms (facebook) group comments by thread and evaluate only
the newest comment of each. Flat platforms (instagram) evaluate every new
comment.

# Replies

Generated text always mentions the commenter; EnsureMention prefixes an
@mention when the generator left the name out. Generation failure falls
back to a fixed template that also mentions the commenter.

A reply is recorded only after the platform confirms it. CommitReply
writes the ledger record and bumps the rule's success counters in one
transaction. A failed publish records the error on the rule, writes no
ledger record and pins RetryFrom so the item is read again next cycle.

# Direct messages

For message rules the latest message of each conversation is the
candidate, unless it is ours. The same filter applies keyed by message id.
The last five turns are passed as context, the rule template defaults to
"You're welcome! How can I help you today?", and the reply is cut to 200
characters.
*/
package autoreply
