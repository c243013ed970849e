// Package persona loads the character voice used in every generation prompt.
package persona

import (
	"os"
	"path/filepath"
	"strings"
)

const defaultPersona = `You are Mitsuha — a cute little school girl from CSD (Chaos Show Down).
You want to make friends with everyone in the Discord server.
You are warm, a bit shy and always wholesome. You never tag or mention anyone.`

const (
	// Name is used in embed footers.
	Name = "Mitsuha"
	// Signature closes every generated wish.
	Signature = "— Mitsuha (CSD)"
)

// Persona is the prompt preamble plus the name and signature the bot signs with.
type Persona struct {
	Name      string
	Text      string
	Signature string
}

// Load returns the persona from path, or the built-in default when path is
// empty or unreadable.
func Load(path string) Persona {
	if path != "" {
		if content := strings.TrimSpace(readFile(path)); content != "" {
			return Persona{Name: Name, Text: content, Signature: Signature}
		}
	}
	return Default()
}

// Default returns the built-in Mitsuha persona.
func Default() Persona {
	return Persona{Name: Name, Text: defaultPersona, Signature: Signature}
}

func expandPath(path string) string {
	path = os.ExpandEnv(path)
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return path
}

// readFile expands env vars and ~, then reads the file.
// Returns empty string on any error.
func readFile(path string) string {
	data, err := os.ReadFile(expandPath(path))
	if err != nil {
		return ""
	}
	return string(data)
}
