package usecase

import (
	"strings"
	"testing"

	"NewsletterWorkflow/internal/domain"
)

func TestBuildSummaryPromptEnumeratesArticles(t *testing.T) {
	t.Parallel()

	messages := BuildSummaryPrompt("", []string{"tech", "ai"}, threeArticles()[:2])
	if len(messages) != 2 || messages[0].Role != domain.RoleSystem || messages[1].Role != domain.RoleUser {
		t.Fatalf("unexpected messages: %+v", messages)
	}
	if !strings.Contains(messages[0].Content, "newsletter editor") {
		t.Fatalf("system instruction missing: %s", messages[0].Content)
	}

	want := "Create a newsletter summary for these categories: tech, ai\n\n" +
		"Articles:\n" +
		"1. Chips\n   New chip launched\n   Source: https://example.com/1\n" +
		"2. Models\n   Model released\n   Source: https://example.com/2"
	if messages[1].Content != want {
		t.Fatalf("unexpected user prompt:\n%s", messages[1].Content)
	}

	again := BuildSummaryPrompt("", []string{"tech", "ai"}, threeArticles()[:2])
	if again[1].Content != messages[1].Content {
		t.Fatalf("prompt must be deterministic")
	}
}

func TestBuildSummaryPromptWithoutArticles(t *testing.T) {
	t.Parallel()

	messages := BuildSummaryPrompt("", []string{"tech"}, nil)
	if !strings.Contains(messages[1].Content, "nothing new this period") {
		t.Fatalf("empty period note missing: %s", messages[1].Content)
	}
	if strings.Contains(messages[1].Content, "Articles:") {
		t.Fatalf("no enumeration expected for an empty list")
	}
}

func TestBuildSummaryPromptOverride(t *testing.T) {
	t.Parallel()

	messages := BuildSummaryPrompt("  Be brief.  ", []string{"tech"}, nil)
	if messages[0].Content != "Be brief." {
		t.Fatalf("override ignored: %q", messages[0].Content)
	}
}
