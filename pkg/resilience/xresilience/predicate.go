package xresilience

// ResultPredicate decides whether an outcome (value, err) counts as a
// "handled" fault a strategy should act on. Every strategy that reacts to
// failures (retry, circuit breaker, hedging, fallback) takes one of these
// instead of hard-coding "err != nil", since a handled outcome may also be
// a successful-looking result the caller wants treated as a fault (e.g. an
// HTTP 500 carried as a value rather than an error).
type ResultPredicate func(value any, err error) bool

// DefaultPredicate treats any non-nil error as handled and any nil-error
// result as not handled. It is the default for every strategy unless a
// caller supplies its own predicate.
func DefaultPredicate(_ any, err error) bool {
	return err != nil
}
