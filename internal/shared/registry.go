package shared

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PermissionDef describes one entry of the closed permission registry.
type PermissionDef struct {
	Code   string `json:"code"`
	Module string `json:"module"`
	Label  string `json:"label"`
}

var actionLabels = map[string]string{
	"ver":      "Ver",
	"crear":    "Crear",
	"editar":   "Editar",
	"eliminar": "Eliminar",
	"ajustar":  "Ajustar",
	"anular":   "Anular",
	"recibir":  "Recibir",
	"exportar": "Exportar",
	"permisos": "Asignar permisos a",
}

var (
	registryOnce sync.Once
	registry     []PermissionDef
	registryIdx  map[string]PermissionDef
)

func buildRegistry() {
	scopes := make([]string, 0, 32)
	scopes = append(scopes, CoreScopes()...)
	scopes = append(scopes, InventoryScopes()...)
	scopes = append(scopes, SalesScopes()...)

	title := cases.Title(language.Spanish)
	registryIdx = make(map[string]PermissionDef, len(scopes))
	registry = make([]PermissionDef, 0, len(scopes))
	for _, code := range scopes {
		module, action := SplitPermission(code)
		label := actionLabels[action]
		if label == "" {
			label = title.String(action)
		}
		def := PermissionDef{
			Code:   code,
			Module: module,
			Label:  label + " " + strings.ToLower(ModuleLabel(module)),
		}
		registry = append(registry, def)
		registryIdx[code] = def
	}
	sort.Slice(registry, func(i, j int) bool { return registry[i].Code < registry[j].Code })
}

// Registry returns every valid permission ordered by code.
func Registry() []PermissionDef {
	registryOnce.Do(buildRegistry)
	out := make([]PermissionDef, len(registry))
	copy(out, registry)
	return out
}

// LookupPermission returns the registry entry for code.
func LookupPermission(code string) (PermissionDef, bool) {
	registryOnce.Do(buildRegistry)
	def, ok := registryIdx[NormalizePermission(code)]
	return def, ok
}

// IsKnownPermission reports whether code belongs to the registry.
func IsKnownPermission(code string) bool {
	_, ok := LookupPermission(code)
	return ok
}

// NormalizePermission trims and lower-cases a permission code.
func NormalizePermission(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// SplitPermission splits "<module>.<action>" at the last dot.
func SplitPermission(code string) (module, action string) {
	code = NormalizePermission(code)
	idx := strings.LastIndexByte(code, '.')
	if idx <= 0 {
		return code, ""
	}
	return code[:idx], code[idx+1:]
}

// ModuleLabel renders a module key for display.
func ModuleLabel(module string) string {
	return cases.Title(language.Spanish).String(strings.ReplaceAll(module, "_", " "))
}

// PermissionsByModule groups registry entries by module key.
func PermissionsByModule() map[string][]PermissionDef {
	grouped := make(map[string][]PermissionDef)
	for _, def := range Registry() {
		grouped[def.Module] = append(grouped[def.Module], def)
	}
	return grouped
}
