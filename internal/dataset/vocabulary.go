package dataset

// Vocabulary assigns consecutive ids to names in order of first
// occurrence.
type Vocabulary struct {
	ids   map[string]int
	names []string
}

func NewVocabulary() *Vocabulary {
	return &Vocabulary{ids: make(map[string]int)}
}

// Add returns the id of name, assigning the next free id if it is new.
func (v *Vocabulary) Add(name string) int {
	if id, ok := v.ids[name]; ok {
		return id
	}

	id := len(v.names)
	v.ids[name] = id
	v.names = append(v.names, name)

	return id
}

// Clone returns an independent copy that keeps every existing id.
func (v *Vocabulary) Clone() *Vocabulary {
	c := &Vocabulary{ids: make(map[string]int, len(v.ids)), names: append([]string(nil), v.names...)}
	for name, id := range v.ids {
		c.ids[name] = id
	}

	return c
}

func (v *Vocabulary) ID(name string) (int, bool) {
	id, ok := v.ids[name]
	return id, ok
}

func (v *Vocabulary) Name(id int) string {
	if id < 0 || id >= len(v.names) {
		return ""
	}

	return v.names[id]
}

// Names returns the names ordered by id.
func (v *Vocabulary) Names() []string {
	return append([]string(nil), v.names...)
}

func (v *Vocabulary) Len() int { return len(v.names) }
