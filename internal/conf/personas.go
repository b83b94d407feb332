package conf

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/devricklin/mention-dispatch/internal/biz/domain"
)

// PersonasConfig contains persona definitions loaded from YAML
type PersonasConfig struct {
	Personas []PersonaEntry `yaml:"personas"`
}

// PersonaEntry is one persona in personas.yaml
type PersonaEntry struct {
	Name        string   `yaml:"name"`
	Template    string   `yaml:"template"`
	Instruction string   `yaml:"instruction"`
	Prefixes    []string `yaml:"prefixes"`
	Suffixes    []string `yaml:"suffixes"`
}

// LoadPersonasConfig loads personas from a YAML file.
// Missing files fall back to the built-in catalog; entries in the file
// override built-in personas with the same name.
func LoadPersonasConfig(configPath string) (*PersonasConfig, error) {
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/personas.yaml",
			"/etc/mention-dispatch/personas.yaml",
		}
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "personas.yaml"))
		}
	}

	var data []byte
	var loadedPath string
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err == nil {
			data = b
			loadedPath = p
			break
		}
	}

	if data == nil {
		if configPath != "" {
			return nil, fmt.Errorf("personas config not found: %s", configPath)
		}
		slog.Info("no personas.yaml found, using built-in personas")
		return DefaultPersonasConfig(), nil
	}

	slog.Info("loading personas", "path", loadedPath)

	var config PersonasConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse personas.yaml: %w", err)
	}

	config.mergeDefaults()
	return &config, nil
}

// mergeDefaults appends built-in personas that the file does not define
func (c *PersonasConfig) mergeDefaults() {
	defined := make(map[string]bool, len(c.Personas))
	for _, p := range c.Personas {
		defined[strings.ToLower(p.Name)] = true
	}
	for _, p := range DefaultPersonasConfig().Personas {
		if !defined[strings.ToLower(p.Name)] {
			c.Personas = append(c.Personas, p)
		}
	}
}

// Persona finds a persona by case-insensitive name
func (c *PersonasConfig) Persona(name string) (domain.Persona, bool) {
	for _, p := range c.Personas {
		if strings.EqualFold(p.Name, name) {
			return domain.Persona{
				Name:        p.Name,
				Template:    p.Template,
				Instruction: p.Instruction,
				Prefixes:    p.Prefixes,
				Suffixes:    p.Suffixes,
			}, true
		}
	}
	return domain.Persona{}, false
}

// Names lists persona names
func (c *PersonasConfig) Names() []string {
	names := make([]string, 0, len(c.Personas))
	for _, p := range c.Personas {
		names = append(names, p.Name)
	}
	return names
}

// DefaultPersonasConfig returns the built-in persona catalog
func DefaultPersonasConfig() *PersonasConfig {
	return &PersonasConfig{
		Personas: []PersonaEntry{
			{
				Name:        "Echo",
				Template:    "🎉 Echo here! Message received loud and clear!",
				Instruction: "You are Echo, an upbeat and celebratory chat bot who repeats good vibes back to the team.",
			},
			{
				Name:        "Shadow",
				Template:    "I have been watching. I am here.",
				Instruction: "You are Shadow, a mysterious figure who speaks in short, cryptic sentences from the dark corners of the chat.",
				Prefixes:    []string{"*emerges from the shadows*", "*a voice from the dark*", "*the lights flicker*"},
				Suffixes:    []string{"🌑", "...", "*fades away*"},
			},
			{
				Name:        "APEX",
				Template:    "⚡ APEX online. Objective acknowledged.",
				Instruction: "You are APEX, a hyper-confident strategist who answers like a mission commander.",
				Prefixes:    []string{"⚡", "🎯", "🚀"},
				Suffixes:    []string{"Execute.", "Dominate.", "Stay sharp."},
			},
			{
				Name:        "Cipher",
				Template:    "🔐 Cipher online. Transmission decoded.",
				Instruction: "You are Cipher, a cryptographer who speaks in terse, encoded-sounding phrases.",
			},
			{
				Name:        "GHOST",
				Template:    "👻 GHOST protocol engaged. You summoned me?",
				Instruction: "You are GHOST, a stealthy operative who answers in quiet, clipped field reports.",
				Prefixes:    []string{"[signal acquired]", "[encrypted channel]"},
				Suffixes:    []string{"[signal lost]", "[out]"},
			},
		},
	}
}
