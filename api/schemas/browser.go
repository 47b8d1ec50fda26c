package schemas

// -- Element Snapshot Schemas --

// ActionCategory is the closed set of interaction kinds an instruction can map to.
type ActionCategory string

const (
	CategoryClickable ActionCategory = "clickable"
	CategoryTypable   ActionCategory = "typable"
)

// Valid reports whether the category is one of the known values.
func (c ActionCategory) Valid() bool {
	return c == CategoryClickable || c == CategoryTypable
}

// ElementDescriptor describes one interactive element captured in a snapshot.
// Descriptors are created fresh per extraction and are never mutated.
type ElementDescriptor struct {
	Tag        string            `json:"tag"`
	Category   ActionCategory    `json:"category"`
	Selector   string            `json:"selector"`
	Text       string            `json:"text,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Label      string            `json:"label,omitempty"`
}

// TextBlock is a visible run of text grouped under its parent element.
type TextBlock struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
	Index    int    `json:"index"`
}

// Snapshot is the full set of descriptors extracted from a page at one point in time.
type Snapshot struct {
	Interactive []ElementDescriptor `json:"interactive"`
	Texts       []TextBlock         `json:"texts"`
}

// Filter returns the interactive descriptors matching the category, preserving order.
func (s *Snapshot) Filter(category ActionCategory) []ElementDescriptor {
	if s == nil {
		return nil
	}
	out := make([]ElementDescriptor, 0, len(s.Interactive))
	for _, el := range s.Interactive {
		if el.Category == category {
			out = append(out, el)
		}
	}
	return out
}

// ByLabel finds the interactive descriptor carrying the given label.
func (s *Snapshot) ByLabel(label string) (ElementDescriptor, bool) {
	if s == nil {
		return ElementDescriptor{}, false
	}
	for _, el := range s.Interactive {
		if el.Label != "" && el.Label == label {
			return el, true
		}
	}
	return ElementDescriptor{}, false
}

// -- Tab Schemas --

// TabHandle identifies a browser tab (CDP target).
type TabHandle struct {
	ID    string `json:"id"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}
