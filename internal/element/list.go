package element

// List is an ordered element sequence. Order is append order: later elements render on top.
type List []Element

// Append adds e at the top of the list.
func (l *List) Append(e Element) {
	*l = append(*l, e.normalized())
}

// Index returns the position of the element with the given id, or -1.
func (l List) Index(id string) int {
	for i := range l {
		if l[i].ID == id {
			return i
		}
	}
	return -1
}

// Find returns the element with the given id.
func (l List) Find(id string) (Element, bool) {
	if i := l.Index(id); i >= 0 {
		return l[i], true
	}
	return Element{}, false
}

// Update merges p into the element with the given id. Unknown ids are a no-op
// since updates may race removals.
func (l List) Update(id string, p Patch) bool {
	i := l.Index(id)
	if i < 0 {
		return false
	}
	l[i] = p.Apply(l[i])
	return true
}

// Remove drops every element with the given id and reports whether any was found.
func (l *List) Remove(id string) bool {
	kept := (*l)[:0]
	removed := false
	for _, e := range *l {
		if e.ID == id {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	// clear the tail so dropped elements are not retained by the backing array
	for i := len(kept); i < len(*l); i++ {
		(*l)[i] = Element{}
	}
	*l = kept
	return removed
}

// Clone returns a deep copy of the list. A nil list clones to an empty one.
func (l List) Clone() List {
	out := make(List, len(l))
	for i := range l {
		out[i] = l[i].Clone()
	}
	return out
}

// TopmostFirst returns the elements in hit-testing order, topmost first.
func (l List) TopmostFirst() []Element {
	out := make([]Element, len(l))
	for i := range l {
		out[len(l)-1-i] = l[i]
	}
	return out
}
