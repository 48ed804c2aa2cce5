package domain

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
)

// runNamespace scopes UUIDv5 run identities derived from trigger keys.
var runNamespace = uuid.MustParse("6f1d3b0e-4c2a-5e8b-9a77-2d5c0f1e8a90")

// TriggerEvent asks for one newsletter to be produced and sent.
type TriggerEvent struct {
	ID         string   `json:"id,omitempty"`
	Categories []string `json:"categories"`
	Recipient  string   `json:"email"`
}

// Normalize trims the recipient and reduces categories to an ordered set.
func (e TriggerEvent) Normalize() TriggerEvent {
	out := TriggerEvent{
		ID:        strings.TrimSpace(e.ID),
		Recipient: strings.TrimSpace(e.Recipient),
	}
	seen := make(map[string]struct{}, len(e.Categories))
	for _, cat := range e.Categories {
		cat = strings.TrimSpace(cat)
		if cat == "" {
			continue
		}
		if _, ok := seen[cat]; ok {
			continue
		}
		seen[cat] = struct{}{}
		out.Categories = append(out.Categories, cat)
	}
	return out
}

// Validate rejects events that can never produce a deliverable newsletter.
func (e TriggerEvent) Validate() error {
	if len(e.Categories) == 0 {
		return fmt.Errorf("%w: at least one category is required", ErrInvalidTrigger)
	}
	if e.Recipient == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidTrigger)
	}
	if _, err := mail.ParseAddress(e.Recipient); err != nil {
		return fmt.Errorf("%w: recipient %q: %v", ErrInvalidTrigger, e.Recipient, err)
	}
	return nil
}

// RunID maps the event to its run identity. Events carrying the same ID always
// map to the same run so that redelivery resumes instead of duplicating work.
func (e TriggerEvent) RunID() string {
	if e.ID == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(runNamespace, []byte("newsletter:"+e.ID)).String()
}

// Label is the human-readable subject label for the requested categories.
func (e TriggerEvent) Label() string {
	return strings.Join(e.Categories, ", ")
}
