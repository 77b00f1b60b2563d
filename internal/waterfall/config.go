package waterfall

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/enrichment-cli/internal/model"
)

// Config is the method order per field.
type Config struct {
	Email   []string `yaml:"email"`
	Website []string `yaml:"website"`
	Phone   []string `yaml:"phone"`
}

// DefaultConfig returns the built-in order. Places methods are opt-in.
func DefaultConfig() Config {
	return Config{
		Email:   []string{MethodSearchEmail, MethodSiteEmail},
		Website: []string{MethodSearchWebsite},
		Phone:   []string{MethodSitePhone},
	}
}

// LoadConfig reads a waterfall.yaml document with a top-level "waterfall"
// key. An empty path or a missing file yields DefaultConfig. Fields the
// document leaves out keep their default order.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, eris.Wrapf(err, "waterfall: read config %s", path)
	}

	var wrapper struct {
		Waterfall Config `yaml:"waterfall"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Config{}, eris.Wrapf(err, "waterfall: parse config %s", path)
	}
	return wrapper.Waterfall.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.Email) == 0 {
		c.Email = d.Email
	}
	if len(c.Website) == 0 {
		c.Website = d.Website
	}
	if len(c.Phone) == 0 {
		c.Phone = d.Phone
	}
	return c
}

// Methods returns the configured method names for f.
func (c Config) Methods(f model.Field) []string {
	switch f {
	case model.FieldEmail:
		return c.Email
	case model.FieldWebsite:
		return c.Website
	case model.FieldPhone:
		return c.Phone
	}
	return nil
}

// Validate checks that every name is a known method serving its field.
func (c Config) Validate() error {
	for _, f := range model.AllFields {
		for _, name := range c.Methods(f) {
			fac, ok := registry[name]
			if !ok {
				return eris.Errorf("waterfall: unknown method %q for %s", name, f)
			}
			if fac.field != f {
				return eris.Errorf("waterfall: method %q resolves %s, not %s", name, fac.field, f)
			}
		}
	}
	return nil
}
