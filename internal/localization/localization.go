// Package localization renders user-facing push and bot text in the
// recipient's language. Translations live in per-language JSON files
// ("en.json", "uk.json") mapping keys to format strings.
package localization

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const fallbackLang = "en"

// Localizer holds the loaded translation tables.
type Localizer struct {
	mu           sync.RWMutex
	translations map[string]map[string]string
}

// NewLocalizer loads every <lang>.json file from dir.
func NewLocalizer(dir string) (*Localizer, error) {
	l := &Localizer{translations: make(map[string]map[string]string)}

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read localization directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		lang := strings.TrimSuffix(file.Name(), ".json")
		data, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read localization file %s: %w", file.Name(), err)
		}

		var table map[string]string
		if err := json.Unmarshal(data, &table); err != nil {
			return nil, fmt.Errorf("failed to parse localization file %s: %w", file.Name(), err)
		}
		l.translations[lang] = table
	}

	return l, nil
}

// T returns the string for key in lang, falling back to English and finally
// to the key itself so a missing translation never blocks delivery.
func (l *Localizer) T(lang, key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if table, ok := l.translations[lang]; ok {
		if v, ok := table[key]; ok {
			return v
		}
	}
	if lang != fallbackLang {
		if table, ok := l.translations[fallbackLang]; ok {
			if v, ok := table[key]; ok {
				return v
			}
		}
	}
	return key
}

// Tf formats the translated string with fmt.Sprintf semantics.
func (l *Localizer) Tf(lang, key string, args ...interface{}) string {
	return fmt.Sprintf(l.T(lang, key), args...)
}
