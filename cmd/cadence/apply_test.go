package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cuemby/cadence/pkg/storage"
	"github.com/cuemby/cadence/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const campaign = `
apiVersion: cadence/v1
kind: Account
metadata:
  id: acct-1
  userId: user-1
spec:
  platform: instagram
  platformUserId: "17841400000000"
  username: bakery
  accessToken: token-1
---
apiVersion: cadence/v1
kind: Rule
metadata:
  id: rule-1
  userId: user-1
spec:
  accountId: acct-1
  kind: auto_reply_comment
  replyTemplate: Thanks for stopping by!
  dailyLimit: 20
---
apiVersion: cadence/v1
kind: Post
metadata:
  id: post-1
  userId: user-1
spec:
  accountId: acct-1
  platform: instagram
  caption: Fresh bread
  mediaKind: photo
  mediaUrls: ["https://cdn.example.com/bread.jpg"]
  scheduledAt: 2025-07-06T09:30:00+02:00
`

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestDecodeResources(t *testing.T) {
	resources, err := decodeResources(strings.NewReader(campaign))
	require.NoError(t, err)
	require.Len(t, resources, 3)
	assert.Equal(t, "Account", resources[0].Kind)
	assert.Equal(t, "Rule", resources[1].Kind)
	assert.Equal(t, "Post", resources[2].Kind)
	assert.Equal(t, "user-1", resources[2].Metadata.UserID)
}

func TestDecodeResources_Errors(t *testing.T) {
	_, err := decodeResources(strings.NewReader(""))
	assert.ErrorContains(t, err, "no resources found")

	_, err = decodeResources(strings.NewReader("kind: Post\nmetadata:\n  id: p\n"))
	assert.ErrorContains(t, err, "metadata.userId is required")

	_, err = decodeResources(strings.NewReader("kind: [unterminated"))
	assert.ErrorContains(t, err, "failed to parse YAML")
}

func TestApplyResources(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	resources, err := decodeResources(strings.NewReader(campaign))
	require.NoError(t, err)
	for _, res := range resources {
		_, err := applyResource(ctx, store, res)
		require.NoError(t, err, res.Kind)
	}

	account, err := store.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, account.Connected)
	cred, ok := account.Credential()
	require.True(t, ok)
	assert.Equal(t, "token-1", cred.AccessToken)

	rule, err := store.GetRule(ctx, "rule-1")
	require.NoError(t, err)
	assert.True(t, rule.Active)
	assert.Equal(t, types.RuleKindAutoReplyComment, rule.Kind)
	assert.Equal(t, 20, rule.DailyLimit)

	post, err := store.GetPost(ctx, "post-1")
	require.NoError(t, err)
	assert.Equal(t, types.PostStatusScheduled, post.Status)
	assert.True(t, post.IsActive)
	assert.Equal(t, types.MediaKindPhoto, post.MediaKind)
	assert.True(t, post.ScheduledAt.Equal(time.Date(2025, 7, 6, 7, 30, 0, 0, time.UTC)), post.ScheduledAt)
}

func TestApplyRule_KeepsCounters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	resources, err := decodeResources(strings.NewReader(campaign))
	require.NoError(t, err)
	for _, res := range resources[:2] {
		_, err := applyResource(ctx, store, res)
		require.NoError(t, err)
	}

	_, err = store.UpdateRule(ctx, "rule-1", func(r *types.AutomationRule) error {
		r.SuccessCount = 7
		r.DailyCount = 2
		r.DailyCountDate = "2025-07-06"
		return nil
	})
	require.NoError(t, err)

	_, err = applyResource(ctx, store, resources[1])
	require.NoError(t, err)

	rule, err := store.GetRule(ctx, "rule-1")
	require.NoError(t, err)
	assert.Equal(t, 7, rule.SuccessCount)
	assert.Equal(t, 2, rule.DailyCount)
}

func TestApplyResource_Validation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown kind",
			doc:  "kind: Service\nmetadata: {userId: u}\nspec: {}\n",
			want: "unsupported resource kind",
		},
		{
			name: "bad platform",
			doc:  "kind: Account\nmetadata: {userId: u}\nspec: {platform: myspace}\n",
			want: "unsupported platform",
		},
		{
			name: "rule without account",
			doc:  "kind: Rule\nmetadata: {userId: u}\nspec: {accountId: nope, kind: auto_reply_message}\n",
			want: "rule account",
		},
		{
			name: "bad rule kind",
			doc:  "kind: Rule\nmetadata: {userId: u}\nspec: {accountId: a, kind: repost}\n",
			want: "rule kind must be",
		},
		{
			name: "post without time",
			doc:  "kind: Post\nmetadata: {userId: u}\nspec: {platform: facebook}\n",
			want: "scheduledAt is required",
		},
		{
			name: "bad media kind",
			doc:  "kind: Post\nmetadata: {userId: u}\nspec:\n  platform: facebook\n  scheduledAt: 2025-07-06T09:30:00Z\n  mediaKind: hologram\n",
			want: "unsupported mediaKind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resources, err := decodeResources(strings.NewReader(tt.doc))
			require.NoError(t, err)
			_, err = applyResource(ctx, store, resources[0])
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestApplyPost_RejectsFinalized(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreatePost(ctx, &types.ScheduledPost{
		ID:          "post-1",
		UserID:      "user-1",
		Platform:    types.PlatformInstagram,
		Status:      types.PostStatusPosted,
		ScheduledAt: time.Now(),
	}))

	resources, err := decodeResources(strings.NewReader(campaign))
	require.NoError(t, err)
	_, err = applyResource(ctx, store, resources[2])
	assert.ErrorContains(t, err, "post is already posted")
}

func TestPrintTables(t *testing.T) {
	var buf bytes.Buffer
	printPosts(&buf, []*types.ScheduledPost{{
		ID:          "post-1",
		Platform:    types.PlatformFacebook,
		MediaKind:   types.MediaKindText,
		Status:      types.PostStatusFailed,
		RetryCount:  3,
		LastError:   strings.Repeat("x", 100),
		ScheduledAt: time.Date(2025, 7, 6, 9, 30, 0, 0, time.UTC),
	}})
	out := buf.String()
	assert.Contains(t, out, "LAST ERROR")
	assert.Contains(t, out, "2025-07-06T09:30:00Z")
	assert.Contains(t, out, "…")

	buf.Reset()
	printRules(&buf, []*types.AutomationRule{{ID: "rule-1", Kind: types.RuleKindAutoReplyMessage, Active: true}})
	assert.Contains(t, buf.String(), "never")
}
