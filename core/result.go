package core

// Result is the terminal outcome of an agent or workflow run.
type Result struct {
	Answer     string         `json:"answer" yaml:"answer"`
	Steps      []Step         `json:"steps,omitempty" yaml:"steps,omitempty"`
	Iterations int            `json:"iterations,omitempty" yaml:"iterations,omitempty"`
	Data       map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// Map flattens the result into a generic object with an "answer" field,
// suitable for JSON/YAML rendering or template state.
func (r Result) Map() map[string]any {
	m := make(map[string]any, len(r.Data)+3)
	for k, v := range r.Data {
		m[k] = v
	}
	m["answer"] = r.Answer
	if len(r.Steps) > 0 {
		m["steps"] = r.Steps
	}
	if r.Iterations > 0 {
		m["iterations"] = r.Iterations
	}
	return m
}
