package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cuemby/cadence/pkg/storage"
	"github.com/cuemby/cadence/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a configuration file",
	Long: `Apply accounts, automation rules and scheduled posts from a YAML file.

Each YAML document is one resource. Resources with an existing id are
replaced; resources without one are created.

Examples:
  # Seed an account and a rule
  cadence apply -f account.yaml

  # Apply several documents separated by ---
  cadence apply -f campaign.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
}

// Resource is one YAML document
type Resource struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   ResourceMetadata `yaml:"metadata"`
	Spec       yaml.Node        `yaml:"spec"`
}

type ResourceMetadata struct {
	ID     string `yaml:"id"`
	UserID string `yaml:"userId"`
}

type accountSpec struct {
	Platform       string `yaml:"platform"`
	PlatformUserID string `yaml:"platformUserId"`
	Username       string `yaml:"username"`
	DisplayName    string `yaml:"displayName"`
	AccessToken    string `yaml:"accessToken"`
}

type ruleSpec struct {
	AccountID     string   `yaml:"accountId"`
	Kind          string   `yaml:"kind"`
	Active        *bool    `yaml:"active"`
	TargetPostIDs []string `yaml:"targetPostIds"`
	ReplyTemplate string   `yaml:"replyTemplate"`
	UseAI         bool     `yaml:"useAI"`
	DailyLimit    int      `yaml:"dailyLimit"`
}

type postSpec struct {
	AccountID    string    `yaml:"accountId"`
	Platform     string    `yaml:"platform"`
	Caption      string    `yaml:"caption"`
	MediaKind    string    `yaml:"mediaKind"`
	MediaURLs    []string  `yaml:"mediaUrls"`
	ThumbnailURL string    `yaml:"thumbnailUrl"`
	StrategyName string    `yaml:"strategyName"`
	ScheduledAt  time.Time `yaml:"scheduledAt"`
	PostTime     string    `yaml:"postTime"`
	Active       *bool     `yaml:"active"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	// Read YAML file
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}
	defer f.Close()

	resources, err := decodeResources(f)
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	for _, res := range resources {
		id, err := applyResource(ctx, store, res)
		if err != nil {
			return fmt.Errorf("%s %s: %w", res.Kind, res.Metadata.ID, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s applied: %s\n", res.Kind, id)
	}
	return nil
}

// decodeResources reads every YAML document from r
func decodeResources(r io.Reader) ([]*Resource, error) {
	var resources []*Resource
	dec := yaml.NewDecoder(r)
	for {
		var res Resource
		err := dec.Decode(&res)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %v", err)
		}
		if res.Kind == "" {
			continue
		}
		if res.Metadata.UserID == "" {
			return nil, fmt.Errorf("%s: metadata.userId is required", res.Kind)
		}
		resources = append(resources, &res)
	}
	if len(resources) == 0 {
		return nil, fmt.Errorf("no resources found")
	}
	return resources, nil
}

// applyResource writes res to the store and returns its id
func applyResource(ctx context.Context, store storage.Store, res *Resource) (string, error) {
	switch res.Kind {
	case "Account":
		return applyAccount(ctx, store, res)
	case "Rule":
		return applyRule(ctx, store, res)
	case "Post":
		return applyPost(ctx, store, res)
	default:
		return "", fmt.Errorf("unsupported resource kind: %s", res.Kind)
	}
}

func applyAccount(ctx context.Context, store storage.Store, res *Resource) (string, error) {
	var spec accountSpec
	if err := res.Spec.Decode(&spec); err != nil {
		return "", fmt.Errorf("invalid spec: %w", err)
	}
	platform, err := parsePlatform(spec.Platform)
	if err != nil {
		return "", err
	}

	account := &types.Account{
		ID:             res.Metadata.ID,
		UserID:         res.Metadata.UserID,
		Platform:       platform,
		PlatformUserID: spec.PlatformUserID,
		Username:       spec.Username,
		DisplayName:    spec.DisplayName,
		AccessToken:    spec.AccessToken,
		Connected:      spec.AccessToken != "",
		UpdatedAt:      time.Now().UTC(),
	}
	if err := store.CreateAccount(ctx, account); err != nil {
		return "", err
	}
	return account.ID, nil
}

func applyRule(ctx context.Context, store storage.Store, res *Resource) (string, error) {
	var spec ruleSpec
	if err := res.Spec.Decode(&spec); err != nil {
		return "", fmt.Errorf("invalid spec: %w", err)
	}

	kind := types.RuleKind(spec.Kind)
	if kind != types.RuleKindAutoReplyComment && kind != types.RuleKindAutoReplyMessage {
		return "", fmt.Errorf("rule kind must be %s or %s", types.RuleKindAutoReplyComment, types.RuleKindAutoReplyMessage)
	}
	if _, err := store.GetAccount(ctx, spec.AccountID); err != nil {
		return "", fmt.Errorf("rule account: %w", err)
	}
	if spec.DailyLimit < 0 {
		return "", fmt.Errorf("dailyLimit must not be negative")
	}

	rule := &types.AutomationRule{
		ID:            res.Metadata.ID,
		UserID:        res.Metadata.UserID,
		AccountID:     spec.AccountID,
		Kind:          kind,
		Active:        spec.Active == nil || *spec.Active,
		TargetPostIDs: spec.TargetPostIDs,
		ReplyTemplate: spec.ReplyTemplate,
		UseAI:         spec.UseAI,
		DailyLimit:    spec.DailyLimit,
		UpdatedAt:     time.Now().UTC(),
	}

	// Keep bookkeeping of a rule that already ran
	if rule.ID != "" {
		if existing, err := store.GetRule(ctx, rule.ID); err == nil {
			rule.DailyCount = existing.DailyCount
			rule.DailyCountDate = existing.DailyCountDate
			rule.LastExecutionAt = existing.LastExecutionAt
			rule.RetryFrom = existing.RetryFrom
			rule.LastSuccessAt = existing.LastSuccessAt
			rule.LastErrorAt = existing.LastErrorAt
			rule.SuccessCount = existing.SuccessCount
			rule.ErrorCount = existing.ErrorCount
			rule.LastError = existing.LastError
			rule.CreatedAt = existing.CreatedAt
		}
	}

	if err := store.CreateRule(ctx, rule); err != nil {
		return "", err
	}
	return rule.ID, nil
}

func applyPost(ctx context.Context, store storage.Store, res *Resource) (string, error) {
	var spec postSpec
	if err := res.Spec.Decode(&spec); err != nil {
		return "", fmt.Errorf("invalid spec: %w", err)
	}
	platform, err := parsePlatform(spec.Platform)
	if err != nil {
		return "", err
	}
	if spec.ScheduledAt.IsZero() {
		return "", fmt.Errorf("scheduledAt is required")
	}

	kind := types.MediaKind(spec.MediaKind)
	switch kind {
	case "":
		kind = types.MediaKindText
	case types.MediaKindText, types.MediaKindPhoto, types.MediaKindCarousel, types.MediaKindReel:
	default:
		return "", fmt.Errorf("unsupported mediaKind: %s", spec.MediaKind)
	}

	if res.Metadata.ID != "" {
		if existing, err := store.GetPost(ctx, res.Metadata.ID); err == nil && existing.IsTerminal() {
			return "", fmt.Errorf("post is already %s", existing.Status)
		}
	}

	post := &types.ScheduledPost{
		ID:           res.Metadata.ID,
		UserID:       res.Metadata.UserID,
		AccountID:    spec.AccountID,
		Platform:     platform,
		Caption:      spec.Caption,
		MediaKind:    kind,
		MediaURLs:    spec.MediaURLs,
		ThumbnailURL: spec.ThumbnailURL,
		StrategyName: spec.StrategyName,
		ScheduledAt:  spec.ScheduledAt.UTC(),
		PostTime:     spec.PostTime,
		Status:       types.PostStatusScheduled,
		IsActive:     spec.Active == nil || *spec.Active,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := store.CreatePost(ctx, post); err != nil {
		return "", err
	}
	return post.ID, nil
}

func parsePlatform(raw string) (types.Platform, error) {
	switch p := types.Platform(raw); p {
	case types.PlatformInstagram, types.PlatformFacebook:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported platform: %q", raw)
	}
}
