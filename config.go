package main

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigDir = ".banner-writer"
	settingsFileName = "settings.yaml"
	envPrefix        = "BANNER_WRITER_"
	maxCanvasSize    = 8192
)

//go:embed config/settings.yaml
var defaultSettingsYAML string

var settingsValidator = validator.New()

// Settings represents the tool configuration
type Settings struct {
	ArticlesDir    string         `koanf:"articles_dir" validate:"required"`
	ArticlePattern string         `koanf:"article_pattern" validate:"required"`
	OutputDir      string         `koanf:"output_dir" validate:"required"`
	PublicBaseURL  string         `koanf:"public_base_url" validate:"required,url"`
	FontPath       string         `koanf:"font_path"`
	Banner         BannerDefaults `koanf:"banner"`
}

// BannerDefaults are applied to every field an article does not override
type BannerDefaults struct {
	Text         string `koanf:"text" validate:"required"`
	Background   string `koanf:"background"`
	CanvasWidth  int    `koanf:"canvas_width" validate:"gt=0,lte=8192"`
	CanvasHeight int    `koanf:"canvas_height" validate:"gt=0,lte=8192"`
	Padding      int    `koanf:"padding" validate:"gte=0"`
	FontSize     int    `koanf:"font_size" validate:"gt=0"`
	MinFontSize  int    `koanf:"min_font_size" validate:"gt=0,ltefield=FontSize"`
}

// DefaultSettings mirrors the layout of the blog the tool was written for
func DefaultSettings() *Settings {
	return &Settings{
		ArticlesDir:    filepath.Join("src", "_posts"),
		ArticlePattern: "**/*.md",
		OutputDir:      filepath.Join("src", ".vuepress", "public", "assets", "images", "titles"),
		PublicBaseURL:  "https://blog.roz.ninja/assets/images/titles",
		Banner: BannerDefaults{
			Text:         DefaultText,
			Background:   DefaultBackground,
			CanvasWidth:  DefaultCanvasWidth,
			CanvasHeight: DefaultCanvasHeight,
			Padding:      DefaultPadding,
			FontSize:     DefaultFontSize,
			MinFontSize:  DefaultMinFontSize,
		},
	}
}

// LoadSettings layers defaults, the settings file and BANNER_WRITER_*
// environment variables, in that order. An empty path reads the default
// settings file if there is one; an explicit path must exist.
func LoadSettings(path string) (*Settings, error) {
	required := path != ""
	if !required {
		path = getConfigPath(settingsFileName)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(DefaultSettings(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	fileValues, err := readSettingsFile(path, required)
	if err != nil {
		return nil, err
	}
	if len(fileValues) > 0 {
		if err := k.Load(rawMap(fileValues), nil); err != nil {
			return nil, fmt.Errorf("applying settings file %s: %w", path, err)
		}
	}

	envKeys := make(map[string]string)
	for _, key := range k.Keys() {
		envKeys[envPrefix+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))] = key
	}
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return envKeys[key], value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var settings Settings
	if err := k.UnmarshalWithConf("", &settings, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &settings,
			TagName:          "koanf",
		},
	}); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &settings, nil
}

// Validate checks field constraints and the cross-field padding rule
func (s *Settings) Validate() error {
	if err := settingsValidator.Struct(s); err != nil {
		return err
	}
	if !doublestar.ValidatePattern(s.ArticlePattern) {
		return fmt.Errorf("article_pattern %q is not a valid glob", s.ArticlePattern)
	}
	if s.Banner.Padding*2 >= min(s.Banner.CanvasWidth, s.Banner.CanvasHeight) {
		return fmt.Errorf("banner.padding %d must be less than half of the canvas (%dx%d)",
			s.Banner.Padding, s.Banner.CanvasWidth, s.Banner.CanvasHeight)
	}
	return nil
}

func readSettingsFile(path string, required bool) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil, nil
		}
		return nil, fmt.Errorf("reading settings file %s: %w", path, err)
	}

	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parsing settings YAML %s: %w", path, err)
	}
	return values, nil
}

// getConfigPath returns the path to a file in the .banner-writer directory
func getConfigPath(filename string) string {
	return filepath.Join(defaultConfigDir, filename)
}

// ensureConfigExists writes the default settings file unless one exists.
// It reports whether a file was written.
func ensureConfigExists(dir string) (string, bool, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", false, fmt.Errorf("creating config directory: %w", err)
	}

	settingsPath := filepath.Join(dir, settingsFileName)
	if _, err := os.Stat(settingsPath); err == nil {
		return settingsPath, false, nil
	} else if !os.IsNotExist(err) {
		return "", false, fmt.Errorf("checking %s: %w", settingsPath, err)
	}

	if err := os.WriteFile(settingsPath, []byte(defaultSettingsYAML), 0644); err != nil {
		return "", false, fmt.Errorf("writing %s: %w", settingsPath, err)
	}
	return settingsPath, true, nil
}

// rawMap adapts already-parsed values to koanf.Provider
type rawMap map[string]any

func (r rawMap) Read() (map[string]any, error) {
	return r, nil
}

func (r rawMap) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("ReadBytes not implemented")
}
