package usecase

import (
	"fmt"
	"strings"

	"NewsletterWorkflow/internal/domain"
)

const editorInstruction = `You are an expert newsletter editor creating a personalized newsletter.
Write a concise, engaging summary that:
- Highlights the most important stories
- Provides context and insights
- Uses a friendly, conversational tone
- Is well-structured with clear sections
- Keeps the reader informed and engaged
Format the response as a proper newsletter with a title and organized content, using Markdown.
Make it email-friendly with clear sections and an engaging headline.`

const emptyPeriodNote = "No new articles were found this period. Write a short, friendly note telling the reader there is nothing new this period for these categories."

// BuildSummaryPrompt returns the deterministic system and user messages for the
// summarize step. A non-empty systemPrompt replaces the built-in instruction.
func BuildSummaryPrompt(systemPrompt string, categories []string, articles []domain.Article) []domain.Message {
	instruction := strings.TrimSpace(systemPrompt)
	if instruction == "" {
		instruction = editorInstruction
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Create a newsletter summary for these categories: %s\n\n", strings.Join(categories, ", "))
	if len(articles) == 0 {
		b.WriteString(emptyPeriodNote)
	} else {
		b.WriteString("Articles:\n")
		for i, article := range articles {
			fmt.Fprintf(&b, "%d. %s\n   %s\n   Source: %s\n", i+1, article.Title, article.Description, article.URL)
		}
	}

	return []domain.Message{
		{Role: domain.RoleSystem, Content: instruction},
		{Role: domain.RoleUser, Content: strings.TrimRight(b.String(), "\n")},
	}
}
