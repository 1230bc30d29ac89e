package xresilience

// Builder assembles a Pipeline from strategies added in outer-to-inner
// order. It is single-use: once Build is called, further calls to
// AddStrategy or Build return ErrBuilderReused.
type Builder struct {
	strategies []Strategy
	seen       map[Strategy]struct{}
	built      bool
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{seen: make(map[Strategy]struct{})}
}

// AddStrategy appends s to the pipeline being built. Adding the same
// strategy instance twice, or calling AddStrategy after Build, panics: both
// are programmer errors, not runtime conditions a caller should need to
// handle defensively.
func (b *Builder) AddStrategy(s Strategy) *Builder {
	if b.built {
		panic(ErrBuilderReused)
	}
	if _, dup := b.seen[s]; dup {
		panic(ErrDuplicateStrategy)
	}
	b.seen[s] = struct{}{}
	b.strategies = append(b.strategies, s)
	return b
}

// Build finalizes the Builder into a Pipeline. An empty builder yields a
// Pipeline wrapping NoOp; a one-strategy builder yields a Pipeline whose
// single-element chain already has no composition overhead beyond that one
// strategy. Build may only be called once.
func (b *Builder) Build() *Pipeline {
	if b.built {
		panic(ErrBuilderReused)
	}
	b.built = true

	if len(b.strategies) == 0 {
		return &Pipeline{strategies: []Strategy{NoOp}}
	}
	return &Pipeline{strategies: b.strategies}
}
