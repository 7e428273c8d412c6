package core

import (
	"context"
	"strings"

	"gwi.com/wonderland-chat/internal/store"
	"gwi.com/wonderland-chat/internal/utils"
)

// SearchHit is a conversation that matched a search and where it matched.
type SearchHit struct {
	Conversation store.Conversation
	TitleMatch   bool
	// MessageMatch is set when any message body contains the term.
	MessageMatch bool
}

// ConversationList is the read side of the conversation sidebar plus the
// select/delete/new actions it offers.
type ConversationList struct {
	repo  *Repository
	chats *ChatService
}

func NewConversationList(repo *Repository, chats *ChatService) *ConversationList {
	return &ConversationList{repo: repo, chats: chats}
}

// Search returns the conversations whose title or any message contains term,
// ignoring case, in stored order. A blank term returns everything.
func (l *ConversationList) Search(term string) []store.Conversation {
	hits := l.Hits(term)
	out := make([]store.Conversation, len(hits))
	for i, h := range hits {
		out[i] = h.Conversation
	}
	return out
}

// Hits is Search with match details.
func (l *ConversationList) Hits(term string) []SearchHit {
	all := l.repo.List()
	if strings.TrimSpace(term) == "" {
		hits := make([]SearchHit, len(all))
		for i, c := range all {
			hits[i] = SearchHit{Conversation: c}
		}
		return hits
	}

	hits := []SearchHit{}
	for _, c := range all {
		h := SearchHit{Conversation: c, TitleMatch: utils.ContainsFold(c.Title, term)}
		for _, m := range c.Messages {
			if utils.ContainsFold(m.Content, term) {
				h.MessageMatch = true
				break
			}
		}
		if h.TitleMatch || h.MessageMatch {
			hits = append(hits, h)
		}
	}
	return hits
}

func (l *ConversationList) New(ctx context.Context) (string, error) {
	return l.repo.Create(ctx)
}

func (l *ConversationList) Select(id string) error {
	return l.repo.Select(id)
}

func (l *ConversationList) Delete(ctx context.Context, id string) error {
	if err := l.repo.Delete(ctx, id); err != nil {
		return err
	}
	if l.chats != nil {
		l.chats.Forget(id)
	}
	return nil
}
