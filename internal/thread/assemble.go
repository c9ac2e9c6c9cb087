// Package thread partitions a flat comment set into positioned top-level
// comments and their replies. Nothing here mutates its input.
package thread

import (
	"sort"

	"imagereview/internal/model"
)

// Threads is a derived view over a flat comment set.
type Threads struct {
	// TopLevel keeps the input order (newest-first when fed from pages).
	TopLevel []model.Comment
	// RepliesByParent holds only parents present in TopLevel, oldest reply first.
	RepliesByParent map[string][]model.Comment
}

// Assemble builds the top-level/reply partition. A reply whose parent is not
// among the top-level comments of the input is left out until the parent shows up.
func Assemble(comments []model.Comment) Threads {
	t := Threads{
		TopLevel:        make([]model.Comment, 0, len(comments)),
		RepliesByParent: make(map[string][]model.Comment),
	}

	roots := make(map[string]struct{})
	for _, c := range comments {
		if c.IsTopLevel() {
			t.TopLevel = append(t.TopLevel, c)
			roots[c.ID] = struct{}{}
		}
	}

	for _, c := range comments {
		if !c.IsReply() || c.IsTopLevel() {
			continue
		}
		if _, ok := roots[*c.ParentID]; !ok {
			continue
		}
		t.RepliesByParent[*c.ParentID] = append(t.RepliesByParent[*c.ParentID], c)
	}

	for _, replies := range t.RepliesByParent {
		sort.SliceStable(replies, func(i, j int) bool {
			return replies[i].CreatedAt.Before(replies[j].CreatedAt)
		})
	}

	return t
}

// Locate returns the id of the top-level comment that should be scrolled to
// for commentID: the comment itself when top-level, or its parent when it is
// a displayed reply.
func (t Threads) Locate(commentID string) (string, bool) {
	for _, c := range t.TopLevel {
		if c.ID == commentID {
			return c.ID, true
		}
	}
	for parentID, replies := range t.RepliesByParent {
		for _, r := range replies {
			if r.ID == commentID {
				return parentID, true
			}
		}
	}
	return "", false
}

// Replies returns the displayed replies of a top-level comment.
func (t Threads) Replies(parentID string) []model.Comment {
	return t.RepliesByParent[parentID]
}
