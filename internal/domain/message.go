package domain

// Role values for prompt messages.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one entry of the conversation sent to the inference provider.
type Message struct {
	Role    string
	Content string
}

// Email is a rendered newsletter ready for the mail transport.
type Email struct {
	Recipient    string
	SubjectLabel string
	ArticleCount int
	HTMLBody     string
}
