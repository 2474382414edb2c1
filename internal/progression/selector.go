package progression

// None marks the absence of an index in a Selection.
const None = -1

// Selection is the derived sequencing state of an ordered topic list.
// It is recomputed on every read and never stored.
type Selection struct {
	Next  int `json:"next_index"`
	Count int `json:"count"`
}

// SelectNext picks the first incomplete item as next. items must already be in
// traversal order. Completion gaps are ignored: everything after the first
// incomplete item is locked even if some of it was completed.
func SelectNext[T any](items []T, completed func(T) bool) Selection {
	sel := Selection{Next: None, Count: len(items)}
	for i, item := range items {
		if !completed(item) {
			sel.Next = i
			break
		}
	}
	return sel
}

// HasNext reports whether some item is still to be done.
func (s Selection) HasNext() bool {
	return s.Next != None
}

// IsNext reports whether i is the next item.
func (s Selection) IsNext(i int) bool {
	return s.Next != None && i == s.Next
}

// IsLocked reports whether i lies after the next item.
func (s Selection) IsLocked(i int) bool {
	return s.Next != None && i > s.Next
}

// LockedFrom returns the first locked index, or None when nothing is locked.
func (s Selection) LockedFrom() int {
	if s.Next == None || s.Next+1 >= s.Count {
		return None
	}
	return s.Next + 1
}
