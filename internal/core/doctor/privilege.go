package doctor

import (
	"context"
	"fmt"

	"github.com/colonyops/auditagent/internal/core/platform"
)

// elevatedFunc reports whether the process runs with elevated privileges.
var elevatedFunc = platform.Elevated

// PrivilegeCheck fails when the agent would run elevated, which it refuses to do.
type PrivilegeCheck struct{}

// NewPrivilegeCheck creates a privilege check.
func NewPrivilegeCheck() *PrivilegeCheck {
	return &PrivilegeCheck{}
}

func (c *PrivilegeCheck) Name() string {
	return "Privileges"
}

func (c *PrivilegeCheck) Run(_ context.Context) Result {
	result := Result{Name: c.Name()}

	elevated, err := elevatedFunc()
	switch {
	case err != nil:
		result.Items = append(result.Items, warn("elevation", fmt.Sprintf("unable to determine: %v", err)))
	case elevated:
		result.Items = append(result.Items, fail("elevation", "running elevated, the agent will refuse to start"))
	default:
		result.Items = append(result.Items, pass("elevation", "standard user"))
	}

	return result
}
