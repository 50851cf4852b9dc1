package io

import (
	"fmt"
	"strings"

	"gaitevo/internal/model"
)

var keyAliasToCanonical = map[string]model.Key{
	"up":      model.KeyUp,
	"w":       model.KeyUp,
	"forward": model.KeyUp,
	"down":    model.KeyDown,
	"s":       model.KeyDown,
	"back":    model.KeyDown,
	"left":    model.KeyLeft,
	"a":       model.KeyLeft,
	"right":   model.KeyRight,
	"d":       model.KeyRight,
	"space":   model.KeySpace,
	" ":       model.KeySpace,
	"stop":    model.KeySpace,
	"e":       model.KeyEvolve,
	"evolve":  model.KeyEvolve,
	"none":    model.KeyNone,
	"-":       model.KeyNone,
}

// ParseKey resolves a key name or alias. Matching ignores case; a lone
// space is kept as the space key.
func ParseKey(name string) (model.Key, error) {
	lookup := strings.ToLower(name)
	if lookup != " " {
		lookup = strings.TrimSpace(lookup)
	}
	if lookup == "" {
		return model.KeyNone, fmt.Errorf("empty key name")
	}
	key, ok := keyAliasToCanonical[lookup]
	if !ok {
		return model.KeyNone, fmt.Errorf("unknown key: %q", name)
	}
	return key, nil
}

// ParseKeyScript parses a comma-separated key list such as "up,up,-,evolve".
func ParseKeyScript(script string) ([]model.Key, error) {
	if strings.TrimSpace(script) == "" {
		return nil, nil
	}
	parts := strings.Split(script, ",")
	keys := make([]model.Key, 0, len(parts))
	for i, part := range parts {
		key, err := ParseKey(part)
		if err != nil {
			return nil, fmt.Errorf("key script entry %d: %w", i, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
