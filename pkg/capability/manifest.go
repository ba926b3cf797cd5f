package capability

import (
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk form of a capability unit
type Manifest struct {
	Kind        string                 `yaml:"kind"`
	Description string                 `yaml:"description"`
	Schema      map[string]interface{} `yaml:"schema"`
	Version     string                 `yaml:"version"`
	Command     []string               `yaml:"command"`
	Config      map[string]interface{} `yaml:"config"`
}

// ManifestLoader loads and validates capability unit manifests
type ManifestLoader struct {
	logger zerolog.Logger
	schema *gojsonschema.Schema
}

// NewManifestLoader creates a new manifest loader
func NewManifestLoader(logger zerolog.Logger) *ManifestLoader {
	// ManifestSchema is a constant, a compile failure is a programming error
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(ManifestSchema))
	if err != nil {
		panic(fmt.Sprintf("invalid manifest schema: %v", err))
	}

	return &ManifestLoader{
		logger: logger.With().Str("component", "manifest-loader").Logger(),
		schema: schema,
	}
}

// LoadManifest reads, parses and validates the manifest at path
func (m *ManifestLoader) LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	manifest, err := m.ParseManifest(data)
	if err != nil {
		return nil, err
	}

	m.logger.Debug().
		Str("path", path).
		Str("kind", manifest.Kind).
		Msg("Loaded manifest")

	return manifest, nil
}

// ParseManifest parses and validates manifest YAML
func (m *ManifestLoader) ParseManifest(data []byte) (*Manifest, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("manifest is empty")
	}

	if err := m.validateSchema(doc); err != nil {
		return nil, fmt.Errorf("manifest schema validation failed: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	if err := validateManifest(&manifest); err != nil {
		return nil, fmt.Errorf("manifest validation failed: %w", err)
	}

	return &manifest, nil
}

func (m *ManifestLoader) validateSchema(doc interface{}) error {
	result, err := m.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, verr := range result.Errors() {
			msgs = append(msgs, verr.String())
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}

	return nil
}

// validateManifest performs checks the JSON schema cannot express
func validateManifest(manifest *Manifest) error {
	if manifest.Version != "" {
		if _, err := semver.StrictNewVersion(manifest.Version); err != nil {
			return fmt.Errorf("invalid version %q (must be semver X.Y.Z): %w", manifest.Version, err)
		}
	}

	if manifest.Kind == "exec" && len(manifest.Command) == 0 {
		return fmt.Errorf("exec units require a command")
	}

	return nil
}

// Unit converts the manifest into a Unit for name
func (m *Manifest) Unit(name, path string) Unit {
	return Unit{
		Name:        name,
		Path:        path,
		Kind:        m.Kind,
		Description: m.Description,
		Schema:      m.Schema,
		Version:     m.Version,
		Command:     m.Command,
		Config:      m.Config,
	}
}
