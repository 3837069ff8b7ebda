package bot

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var messagesYAML []byte

// DefaultLanguage is used when no language is configured.
const DefaultLanguage = "en"

// Messages is the reply catalogue for one language.
type Messages struct {
	Start        string `yaml:"start"`
	AllNamed     string `yaml:"all_named"`
	EnterName    string `yaml:"enter_name"`
	NotFound     string `yaml:"not_found"`
	Labeled      string `yaml:"labeled"`
	CannotLabel  string `yaml:"cannot_label"`
	FaceNotFound string `yaml:"face_not_found"`
	Unavailable  string `yaml:"unavailable"`
	Error        string `yaml:"error"`
}

// LoadMessages returns the embedded catalogue for lang.
func LoadMessages(lang string) (*Messages, error) {
	var catalogue map[string]*Messages
	if err := yaml.Unmarshal(messagesYAML, &catalogue); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embedded messages.yaml: %w", err)
	}

	if lang == "" {
		lang = DefaultLanguage
	}
	m, ok := catalogue[strings.ToLower(lang)]
	if !ok {
		return nil, fmt.Errorf("unsupported bot language %q", lang)
	}
	return m, nil
}

func withName(template, name string) string {
	return strings.ReplaceAll(template, "{name}", name)
}
