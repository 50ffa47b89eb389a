//go:build !windows

package pathres

// NewNativeResolver returns a resolver for the running OS. Outside Windows
// kernel names are already paths, so no device tables are needed.
func NewNativeResolver(m Matcher) *Resolver {
	return NewResolver(m)
}
