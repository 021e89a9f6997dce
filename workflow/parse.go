package workflow

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var errUnparsable = errors.New("unparsable model output")

var codeFence = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\n(.*?)```")

// decodeStructured decodes model output holding JSON or YAML into v. Output
// wrapped in a markdown code fence is unwrapped first; JSON embedded in prose
// is located by its outermost brackets.
func decodeStructured(text string, v any) error {
	body := strings.TrimSpace(text)
	if m := codeFence.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}

	if err := json.Unmarshal([]byte(body), v); err == nil {
		return nil
	}
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start, end := strings.Index(body, pair[0]), strings.LastIndex(body, pair[1])
		if start >= 0 && end > start {
			if err := json.Unmarshal([]byte(body[start:end+1]), v); err == nil {
				return nil
			}
		}
	}
	if err := yaml.Unmarshal([]byte(body), v); err == nil {
		return nil
	}
	return errUnparsable
}
