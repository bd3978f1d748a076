package delbin

// Environment holds the external name/value bindings a schema can read
// through `${NAME}` and bare flag-like identifiers (spec §3 "Environment",
// §9 open question: bare uppercase identifiers are environment lookups
// only, never field aliases). Values are either an integer or a string;
// delbin never coerces one into the other.
type Environment struct {
	ints    map[string]uint64
	strings map[string]string
}

// NewEnvironment returns an empty Environment ready for Set calls.
func NewEnvironment() *Environment {
	return &Environment{ints: map[string]uint64{}, strings: map[string]string{}}
}

// SetInt binds name to an integer value.
func (e *Environment) SetInt(name string, v uint64) {
	delete(e.strings, name)
	e.ints[name] = v
}

// SetString binds name to a string value.
func (e *Environment) SetString(name string, v string) {
	delete(e.ints, name)
	e.strings[name] = v
}

// LookupInt returns the integer bound to name, or false if name is unbound
// or bound to a string.
func (e *Environment) LookupInt(name string) (uint64, bool) {
	v, ok := e.ints[name]
	return v, ok
}

// LookupString returns the string bound to name, or false if name is
// unbound or bound to an integer.
func (e *Environment) LookupString(name string) (string, bool) {
	v, ok := e.strings[name]
	return v, ok
}

// Has reports whether name is bound to anything, integer or string.
func (e *Environment) Has(name string) bool {
	if _, ok := e.ints[name]; ok {
		return true
	}
	_, ok := e.strings[name]
	return ok
}

// SectionStore holds named external byte blobs a schema can reference by
// `@sizeof(name)`/bare-identifier ranges, plus the struct's own bytes,
// registered under the struct's own name once encoding has produced them
// (spec §3 "Section store", §4.5).
type SectionStore struct {
	sections map[string][]byte
}

// NewSectionStore wraps a caller-supplied name->bytes map. A nil map is
// treated as empty.
func NewSectionStore(sections map[string][]byte) *SectionStore {
	if sections == nil {
		sections = map[string][]byte{}
	}
	cp := make(map[string][]byte, len(sections))
	for k, v := range sections {
		cp[k] = v
	}
	return &SectionStore{sections: cp}
}

// Get returns the bytes registered under name.
func (s *SectionStore) Get(name string) ([]byte, bool) {
	b, ok := s.sections[name]
	return b, ok
}

// set registers or replaces a section's bytes; used internally by the
// encoder to publish the struct's own output for self-referencing ranges.
func (s *SectionStore) set(name string, data []byte) {
	s.sections[name] = data
}

// Names returns the registered section names, for diagnostics.
func (s *SectionStore) Names() []string {
	names := make([]string, 0, len(s.sections))
	for k := range s.sections {
		names = append(names, k)
	}
	return names
}
