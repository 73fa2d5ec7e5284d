package campaign

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"strings"
)

// DefaultArea is the template group used when a lead's interest area has none.
const DefaultArea = "default"

// ErrNoTemplate is returned when neither the lead's area nor the default
// group has any template.
var ErrNoTemplate = errors.New("no template available")

// Templates groups message templates by interest area.
type Templates map[string][]string

// Picker chooses one template out of a non-empty candidate list.
type Picker interface {
	Pick(candidates []string) string
}

// RandomPicker chooses uniformly at random.
type RandomPicker struct{}

func (RandomPicker) Pick(candidates []string) string {
	return candidates[rand.IntN(len(candidates))]
}

// FirstPicker always picks the first candidate.
type FirstPicker struct{}

func (FirstPicker) Pick(candidates []string) string {
	return candidates[0]
}

// For returns the candidates for area, falling back to the default group.
func (t Templates) For(area string) ([]string, error) {
	area = strings.ToLower(strings.TrimSpace(area))
	if c := t[area]; len(c) > 0 {
		return c, nil
	}
	if c := t[DefaultArea]; len(c) > 0 {
		return c, nil
	}
	return nil, fmt.Errorf("%w for area %q", ErrNoTemplate, area)
}

// Personalize substitutes the {name} placeholder.
func Personalize(template, name string) string {
	return strings.ReplaceAll(template, "{name}", name)
}

// LoadTemplates reads a JSON object of area -> templates from path.
// A missing file yields an empty catalog.
func LoadTemplates(path string) (Templates, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Templates{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}

	var t Templates
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode templates %s: %w", path, err)
	}

	out := make(Templates, len(t))
	for area, list := range t {
		out[strings.ToLower(strings.TrimSpace(area))] = list
	}
	return out, nil
}
