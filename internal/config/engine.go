package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strings"
	"time"

	"workgraph/internal/milestone"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// ErrInvalidConfig is returned when the engine configuration fails validation.
var ErrInvalidConfig = errors.New("invalid engine configuration")

// Origin configures one repository or Azure DevOps project items are crawled
// from.
type Origin struct {
	Name           string   `mapstructure:"name"`
	Products       []string `mapstructure:"products"`
	DefaultProduct string   `mapstructure:"default_product"`
}

// TeamRule assigns Team to every item with an area at or below Area.
type TeamRule struct {
	Area string `mapstructure:"area"`
	Team string `mapstructure:"team"`
}

// Engine configures workspace construction.
type Engine struct {
	Milestones       milestone.Config `mapstructure:"milestones"`
	Origins          []Origin         `mapstructure:"origins"`
	Teams            []TeamRule       `mapstructure:"teams"`
	AzureOrg         string           `mapstructure:"azure_org"`
	CompactionWindow time.Duration    `mapstructure:"compaction_window"`
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DefaultMilestones covers .NET and Visual Studio milestone spellings.
func DefaultMilestones() milestone.Config {
	return milestone.Config{
		Patterns: []string{
			`(?i)^(?P<product>\.NET|Visual Studio|VS)?\s*(?P<version>\d+\.\d+(?:\.\d+)?)(?:\.(?P<band>\dxx))?(?:\s*(?P<suffixName>Preview|P|RC)\s*(?P<suffixNumber>\d+))?$`,
		},
		Products: []string{".NET", "Visual Studio"},
		ProductAliases: map[string]string{
			"VS":     "Visual Studio",
			"dotnet": ".NET",
		},
		SuffixAliases: map[string]string{
			"Preview": "P",
		},
		VersionRanges: []milestone.VersionRange{
			{Product: "Visual Studio", Min: "16.0", Max: "17.99"},
		},
		Releases: []milestone.Release{
			{Product: ".NET", Version: "5.0", Date: date(2020, time.November, 10)},
			{Product: ".NET", Version: "6.0", Date: date(2021, time.November, 8)},
			{Product: ".NET", Version: "7.0", Date: date(2022, time.November, 8)},
			{Product: ".NET", Version: "8.0", Date: date(2023, time.November, 14)},
			{Product: ".NET", Version: "9.0", Date: date(2024, time.November, 12)},
			{Product: "Visual Studio", Version: "16.8", Date: date(2020, time.November, 10)},
			{Product: "Visual Studio", Version: "17.0", Date: date(2021, time.November, 8)},
		},
	}
}

// DefaultEngine returns the built-in configuration used when no file exists.
func DefaultEngine() *Engine {
	return &Engine{
		Milestones:       DefaultMilestones(),
		CompactionWindow: 5 * time.Second,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("azure_org", "")
	v.SetDefault("compaction_window", "5s")
}

// dateHookFunc decodes "2006-01-02" and RFC 3339 strings into time.Time.
func dateHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Time{}) {
			return data, nil
		}
		s := strings.TrimSpace(reflect.ValueOf(data).String())
		for _, layout := range []string{time.DateOnly, time.RFC3339} {
			if d, err := time.Parse(layout, s); err == nil {
				return d, nil
			}
		}
		return nil, fmt.Errorf("cannot parse %q as a date", s)
	}
}

func viperDecoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			dateHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)
}

// LoadEngine reads the engine configuration from a YAML file. A missing file
// yields DefaultEngine. Scalars can be overridden with WORKGRAPH_* variables.
func LoadEngine(path string) (*Engine, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("WORKGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read engine config %s: %w", path, err)
			}
			log.Debug().Str("path", path).Msg("Loaded engine configuration")
		} else {
			log.Debug().Str("path", path).Msg("No engine configuration file, using built-in defaults")
		}
	}

	var cfg Engine
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, fmt.Errorf("failed to decode engine config: %w", err)
	}
	if len(cfg.Milestones.Patterns) == 0 {
		cfg.Milestones = DefaultMilestones()
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks structural consistency. Pattern syntax is checked when the
// milestone parser compiles them.
func Validate(cfg *Engine) error {
	if cfg.CompactionWindow < 0 {
		return fmt.Errorf("%w: compaction_window must not be negative", ErrInvalidConfig)
	}

	seen := make(map[string]bool)
	for i, o := range cfg.Origins {
		name := strings.ToLower(strings.TrimSpace(o.Name))
		if name == "" {
			return fmt.Errorf("%w: origins[%d] has no name", ErrInvalidConfig, i)
		}
		if seen[name] {
			return fmt.Errorf("%w: origin %q is configured twice", ErrInvalidConfig, o.Name)
		}
		seen[name] = true
		if o.DefaultProduct != "" && len(o.Products) > 0 && !slices.ContainsFunc(o.Products, func(p string) bool {
			return strings.EqualFold(p, o.DefaultProduct)
		}) {
			return fmt.Errorf("%w: origin %q default product %q is not one of its products", ErrInvalidConfig, o.Name, o.DefaultProduct)
		}
	}

	for i, r := range cfg.Teams {
		if strings.TrimSpace(r.Area) == "" || strings.TrimSpace(r.Team) == "" {
			return fmt.Errorf("%w: teams[%d] needs both area and team", ErrInvalidConfig, i)
		}
	}

	for i, r := range cfg.Milestones.Releases {
		if r.Product == "" || r.Version == "" || r.Date.IsZero() {
			return fmt.Errorf("%w: milestones.releases[%d] needs product, version and date", ErrInvalidConfig, i)
		}
	}
	return nil
}

func (e *Engine) origin(name string) (Origin, bool) {
	for _, o := range e.Origins {
		if strings.EqualFold(o.Name, name) {
			return o, true
		}
	}
	return Origin{}, false
}

// CandidateProducts returns the products milestone text from origin may
// belong to.
func (e *Engine) CandidateProducts(origin string) []string {
	o, ok := e.origin(origin)
	if !ok {
		return nil
	}
	if len(o.Products) == 0 && o.DefaultProduct != "" {
		return []string{o.DefaultProduct}
	}
	return o.Products
}

// DefaultProduct returns the product items from origin belong to when
// nothing else says so.
func (e *Engine) DefaultProduct(origin string) string {
	o, ok := e.origin(origin)
	if !ok {
		return ""
	}
	if o.DefaultProduct == "" && len(o.Products) == 1 {
		return o.Products[0]
	}
	return o.DefaultProduct
}

// TeamsFor returns the sorted, distinct teams owning any of areas.
func (e *Engine) TeamsFor(areas []string) []string {
	var teams []string
	for _, area := range areas {
		a := strings.ToLower(strings.Trim(area, "/"))
		for _, r := range e.Teams {
			prefix := strings.ToLower(strings.Trim(r.Area, "/"))
			if a == prefix || strings.HasPrefix(a, prefix+"/") {
				teams = append(teams, r.Team)
			}
		}
	}
	slices.Sort(teams)
	return slices.Compact(teams)
}
