package promotion

// codeSet tracks promotion codes already seen during an import.
type codeSet struct {
	codes map[string]struct{}
}

func newCodeSet(capacity int) *codeSet {
	return &codeSet{codes: make(map[string]struct{}, capacity)}
}

func (s *codeSet) Contains(code string) bool {
	_, exists := s.codes[code]
	return exists
}

// Add reports whether code was newly added.
func (s *codeSet) Add(code string) bool {
	if s.Contains(code) {
		return false
	}
	s.codes[code] = struct{}{}
	return true
}

func (s *codeSet) Size() int {
	return len(s.codes)
}
