package shadow

import "github.com/sarchlab/shadowmem/hooking"

// Builder can build Managers.
type Builder struct {
	rangeScanMode RangeScanMode
	hooks         []hooking.Hook
}

// MakeBuilder creates a builder with the default parameters.
func MakeBuilder() Builder {
	return Builder{
		rangeScanMode: RangeScanFull,
	}
}

// WithRangeScanMode sets how multi-page range queries are answered.
func (b Builder) WithRangeScanMode(mode RangeScanMode) Builder {
	b.rangeScanMode = mode
	return b
}

// WithHook registers a hook on every Manager built.
func (b Builder) WithHook(hook hooking.Hook) Builder {
	b.hooks = append(b.hooks[:len(b.hooks):len(b.hooks)], hook)
	return b
}

func (b Builder) parametersMustBeValid() {
	switch b.rangeScanMode {
	case RangeScanFull, RangeScanReference:
	default:
		panic("unknown range scan mode " + b.rangeScanMode.String())
	}
}

// Build creates a new, empty Manager.
func (b Builder) Build() *Manager {
	b.parametersMustBeValid()

	m := &Manager{
		rangeScanMode: b.rangeScanMode,
		pages:         make(map[uint64]*Page),
	}

	for _, hook := range b.hooks {
		m.AcceptHook(hook)
	}

	return m
}

// BuildLocked creates a new, empty Manager guarded by a Locked wrapper.
func (b Builder) BuildLocked() *Locked {
	return NewLocked(b.Build())
}
