package doctor

import (
	"context"
	"errors"

	"github.com/colonyops/auditagent/internal/core/config"
	"github.com/hay-kot/criterio"
)

// ConfigCheck runs deep configuration validation and reports each field
// error as its own item.
type ConfigCheck struct {
	cfg  *config.Config
	path string
}

// NewConfigCheck creates a configuration check for cfg loaded from path.
func NewConfigCheck(cfg *config.Config, path string) *ConfigCheck {
	return &ConfigCheck{cfg: cfg, path: path}
}

func (c *ConfigCheck) Name() string {
	return "Configuration"
}

func (c *ConfigCheck) Run(_ context.Context) Result {
	result := Result{Name: c.Name()}

	err := c.cfg.ValidateDeep(c.path)
	if err == nil {
		detail := c.path
		if detail == "" {
			detail = "defaults"
		}
		result.Items = append(result.Items, pass("config", detail))
		return result
	}

	var fieldErrs criterio.FieldErrors
	if !errors.As(err, &fieldErrs) {
		result.Items = append(result.Items, fail("config", err.Error()))
		return result
	}

	for _, fe := range fieldErrs {
		result.Items = append(result.Items, fail(fe.Field, fe.Err.Error()))
	}
	return result
}
