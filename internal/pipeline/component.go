package pipeline

import (
	"fmt"
	"time"

	"github.com/ufs-archive/ufs2arco/internal/config"
	"github.com/ufs-archive/ufs2arco/internal/dataset"
)

// Component is one model component variant. It supplies the configuration
// defaults for its YAML block and the normalization applied after the raw
// cycle files are merged. FV3 (the atmosphere) is implemented; ocean and ice
// components plug in the same way.
type Component interface {
	// Name is the YAML block key selecting this component.
	Name() string
	// Defaults are the fallbacks for optional configuration keys.
	Defaults() config.Defaults
	// Normalize reshapes a freshly merged dataset into archive form:
	// component-specific coordinate construction and attribute fixes.
	Normalize(ds *dataset.Dataset, cycle time.Time) error
}

// ForName returns the component registered under a YAML block key.
func ForName(name string) (Component, error) {
	switch name {
	case "FV3Dataset":
		return FV3{}, nil
	default:
		return nil, fmt.Errorf("pipeline: unknown component %q", name)
	}
}
