package shared

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCodesAreNamespacedAndUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for _, def := range Registry() {
		module, action := SplitPermission(def.Code)
		require.NotEmpty(t, module, "code %q", def.Code)
		require.NotEmpty(t, action, "code %q", def.Code)
		assert.Equal(t, module, def.Module)
		assert.Equal(t, strings.ToLower(def.Code), def.Code)
		_, dup := seen[def.Code]
		require.False(t, dup, "duplicate code %q", def.Code)
		seen[def.Code] = struct{}{}
	}
	assert.Len(t, seen, len(CoreScopes())+len(InventoryScopes())+len(SalesScopes()))
}

func TestLookupPermissionNormalizes(t *testing.T) {
	def, ok := LookupPermission("  Inventario.VER ")
	require.True(t, ok)
	assert.Equal(t, PermInventoryView, def.Code)
	assert.Equal(t, "inventario", def.Module)
	assert.Equal(t, "Ver inventario", def.Label)

	assert.False(t, IsKnownPermission("inventario.volar"))
	assert.False(t, IsKnownPermission(""))
}

func TestPermissionsByModule(t *testing.T) {
	grouped := PermissionsByModule()
	require.Contains(t, grouped, "ventas")
	codes := make([]string, 0)
	for _, def := range grouped["ventas"] {
		codes = append(codes, def.Code)
	}
	assert.ElementsMatch(t, []string{PermSalesView, PermSalesCreate, PermSalesVoid}, codes)
	assert.Equal(t, "Reportes", ModuleLabel("reportes"))
}
