package library

import (
	"cmp"
	"iter"
	"slices"
	"strings"
)

// SortOrder selects the direction of BooksByYear.
type SortOrder int

const (
	SortAscending SortOrder = iota
	SortDescending
)

// Group is one bucket of a grouping report.
type Group struct {
	Key    string   `json:"key"`
	Count  int      `json:"count"`
	Titles []string `json:"titles,omitempty"`
}

// BooksByYear yields books ordered by publication year. Books from the same
// year keep their catalog order.
func BooksByYear(books []Book, order SortOrder) iter.Seq[Book] {
	return func(yield func(Book) bool) {
		sorted := slices.Clone(books)
		slices.SortStableFunc(sorted, func(a, b Book) int {
			if order == SortDescending {
				return cmp.Compare(b.PublicationYear, a.PublicationYear)
			}
			return cmp.Compare(a.PublicationYear, b.PublicationYear)
		})
		for _, b := range sorted {
			if !yield(b) {
				return
			}
		}
	}
}

// BooksByAuthor groups books by author name, in order of first appearance.
func BooksByAuthor(books []Book) iter.Seq[Group] {
	return func(yield func(Group) bool) {
		for _, g := range groupBy(books, func(b Book) string { return b.Author.Name }, func(b Book) string { return b.Title }) {
			if !yield(g) {
				return
			}
		}
	}
}

// MembersByTier groups members by membership tier.
func MembersByTier(members []*Member) iter.Seq[Group] {
	return func(yield func(Group) bool) {
		for _, g := range groupBy(members, func(m *Member) string { return m.Tier.String() }, nil) {
			if !yield(g) {
				return
			}
		}
	}
}

// FilterByTitle yields the books whose title contains keyword, ignoring case.
func FilterByTitle(books []Book, keyword string) iter.Seq[Book] {
	return func(yield func(Book) bool) {
		kw := strings.ToLower(keyword)
		for _, b := range books {
			if !strings.Contains(strings.ToLower(b.Title), kw) {
				continue
			}
			if !yield(b) {
				return
			}
		}
	}
}

// BorrowCounts yields (member name, books on loan) for each member.
func BorrowCounts(members []*Member) iter.Seq2[string, int] {
	return func(yield func(string, int) bool) {
		for _, m := range members {
			if !yield(m.Name, m.BorrowedCount()) {
				return
			}
		}
	}
}

// AuthorsWithMultipleBooks yields the author groups that hold more than one title.
func AuthorsWithMultipleBooks(books []Book) iter.Seq[Group] {
	return func(yield func(Group) bool) {
		for g := range BooksByAuthor(books) {
			if g.Count < 2 {
				continue
			}
			if !yield(g) {
				return
			}
		}
	}
}

func groupBy[T any](items []T, key func(T) string, title func(T) string) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, it := range items {
		k := key(it)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{Key: k})
		}
		groups[i].Count++
		if title != nil {
			groups[i].Titles = append(groups[i].Titles, title(it))
		}
	}
	return groups
}
