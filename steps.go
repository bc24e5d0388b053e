package mediaforge

// Steps is an ordered set of processing instructions. Each step names the
// robot that executes it plus its options.
type Steps struct {
	order []string
	steps map[string]map[string]interface{}
}

// NewSteps creates an empty step set.
func NewSteps() *Steps {
	return &Steps{steps: map[string]map[string]interface{}{}}
}

// Add appends a step, or replaces the options of an existing one.
func (s *Steps) Add(name, robot string, options map[string]interface{}) {
	step := map[string]interface{}{"robot": robot}
	for k, v := range options {
		step[k] = v
	}
	if _, exists := s.steps[name]; !exists {
		s.order = append(s.order, name)
	}
	s.steps[name] = step
}

// Remove drops a step by name.
func (s *Steps) Remove(name string) {
	if _, exists := s.steps[name]; !exists {
		return
	}
	delete(s.steps, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Empty reports whether no steps were added.
func (s *Steps) Empty() bool {
	return len(s.steps) == 0
}

func (s *Steps) toMap() map[string]interface{} {
	out := make(map[string]interface{}, len(s.steps))
	for _, name := range s.order {
		out[name] = s.steps[name]
	}
	return out
}
