// Package prompts renders the templates used to draft quiz questions with an LLM.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var Templates embed.FS

var topicTagRegex = regexp.MustCompile(`(?i)</?\s*(topic|system-instructions)\b[^>]*>`)

// Difficulty selects a drafting template.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// MaxTopicRunes bounds the topic text placed in a prompt.
const MaxTopicRunes = 200

var difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Difficulty]*template.Template
)

// IsValidDifficulty reports whether d names a known template.
func IsValidDifficulty(d string) bool {
	for _, v := range difficulties {
		if string(v) == d {
			return true
		}
	}
	return false
}

// DraftData holds template data for drafting prompts.
type DraftData struct {
	Topic    string
	Count    int
	Language string
}

// Load parses the drafting templates from fsys. Only the first call has an effect.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		loaded := make(map[Difficulty]*template.Template, len(difficulties))
		for _, d := range difficulties {
			name := "templates/draft_" + string(d) + ".txt"
			content, err := fs.ReadFile(fsys, name)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", name, err)
				return
			}
			tmpl, err := template.New(string(d)).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", name, err)
				return
			}
			loaded[d] = tmpl
		}
		templates = loaded
	})
	return loadErr
}

// BuildDraftPrompt renders the template for d.
func BuildDraftPrompt(d Difficulty, data DraftData) (string, error) {
	if templates == nil {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := templates[d]
	if !ok {
		return "", errors.New("invalid difficulty: " + string(d))
	}

	data.Topic = SanitizeTopic(data.Topic)
	if data.Topic == "" {
		return "", errors.New("empty topic")
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SanitizeTopic strips prompt tags, collapses whitespace and bounds the length.
func SanitizeTopic(topic string) string {
	topic = topicTagRegex.ReplaceAllString(topic, "")
	topic = strings.Join(strings.Fields(topic), " ")
	if utf8.RuneCountInString(topic) > MaxTopicRunes {
		topic = string([]rune(topic)[:MaxTopicRunes])
	}
	return topic
}
