// Package gate implements the edge authorization check that runs before any
// protected page is served.
package gate

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/masa-erp/masa/internal/shared"
)

// Route declares the permission required for a path prefix. Segments written
// as {name} match any single path segment. An Exact route covers only the path
// itself, never the subtree below it.
type Route struct {
	Prefix     string
	Permission string
	Exact      bool
}

type compiledRoute struct {
	Route
	pattern *regexp.Regexp
	weight  int
}

// RouteTable resolves protected paths to required permission codes.
type RouteTable struct {
	protected string
	routes    []compiledRoute
}

// ErrInvalidRoute reports a malformed or inconsistent route declaration.
var ErrInvalidRoute = errors.New("gate: invalid route")

// NewRouteTable validates routes against the permission registry and compiles them.
func NewRouteTable(protectedPrefix string, routes []Route) (*RouteTable, error) {
	protectedPrefix = cleanPrefix(protectedPrefix)
	if protectedPrefix == "" || protectedPrefix == "/" {
		return nil, fmt.Errorf("%w: protected prefix %q", ErrInvalidRoute, protectedPrefix)
	}
	if err := Validate(protectedPrefix, routes); err != nil {
		return nil, err
	}
	table := &RouteTable{protected: protectedPrefix, routes: make([]compiledRoute, 0, len(routes))}
	for _, r := range routes {
		prefix := cleanPrefix(r.Prefix)
		pattern, weight := compilePrefix(prefix, r.Exact)
		table.routes = append(table.routes, compiledRoute{
			Route:   Route{Prefix: prefix, Permission: shared.NormalizePermission(r.Permission), Exact: r.Exact},
			pattern: pattern,
			weight:  weight,
		})
	}
	// Most specific first so the first match wins.
	sort.SliceStable(table.routes, func(i, j int) bool {
		return table.routes[i].weight > table.routes[j].weight
	})
	return table, nil
}

// Validate checks every declaration: prefixes under the protected prefix,
// codes present in the registry, no duplicates.
func Validate(protectedPrefix string, routes []Route) error {
	protectedPrefix = cleanPrefix(protectedPrefix)
	seen := make(map[string]struct{}, len(routes))
	var errs []error
	for _, r := range routes {
		prefix := cleanPrefix(r.Prefix)
		if !underPrefix(prefix, protectedPrefix) {
			errs = append(errs, fmt.Errorf("%w: %q outside %q", ErrInvalidRoute, r.Prefix, protectedPrefix))
		}
		if !shared.IsKnownPermission(r.Permission) {
			errs = append(errs, fmt.Errorf("%w: %q requires unknown permission %q", ErrInvalidRoute, r.Prefix, r.Permission))
		}
		key := strings.ToLower(prefix)
		if _, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate prefix %q", ErrInvalidRoute, r.Prefix))
		}
		seen[key] = struct{}{}
	}
	return errors.Join(errs...)
}

// Protected reports whether path falls under the protected prefix.
func (t *RouteTable) Protected(path string) bool {
	return underPrefix(path, t.protected)
}

// ProtectedPrefix returns the configured protected prefix.
func (t *RouteTable) ProtectedPrefix() string {
	return t.protected
}

// Match returns the most specific route covering path.
func (t *RouteTable) Match(path string) (Route, bool) {
	path = cleanPath(path)
	for _, r := range t.routes {
		if r.pattern.MatchString(path) {
			return r.Route, true
		}
	}
	return Route{}, false
}

// Routes returns the declarations, most specific first.
func (t *RouteTable) Routes() []Route {
	out := make([]Route, len(t.routes))
	for i, r := range t.routes {
		out[i] = r.Route
	}
	return out
}

var paramSegment = regexp.MustCompile(`^\{[A-Za-z_][A-Za-z0-9_]*\}$`)

// compilePrefix turns a prefix into an anchored expression matching the prefix
// itself and, unless exact, anything below it. The weight ranks literal
// segments above parameter segments.
func compilePrefix(prefix string, exact bool) (*regexp.Regexp, int) {
	segments := strings.Split(strings.Trim(prefix, "/"), "/")
	parts := make([]string, 0, len(segments))
	weight := 0
	for _, seg := range segments {
		if paramSegment.MatchString(seg) {
			parts = append(parts, `[^/]+`)
			weight++
			continue
		}
		parts = append(parts, regexp.QuoteMeta(seg))
		weight += 2
	}
	subtree := `(?:/.*)?`
	if exact {
		subtree = ``
	}
	return regexp.MustCompile(`(?i)^/` + strings.Join(parts, "/") + subtree + `$`), weight
}

func underPrefix(path, prefix string) bool {
	path = strings.ToLower(cleanPath(path))
	prefix = strings.ToLower(prefix)
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func cleanPrefix(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

// cleanPath resolves dot segments and repeated slashes the same way the
// router does, so a path is checked against the route it will be served by.
func cleanPath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
