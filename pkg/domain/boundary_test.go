package domain

import (
	"testing"

	"samplecore/testutil"
)

// The domain package is the leaf of the module: engine, storage and transport
// all depend on it, never the reverse.
func TestDomainImportsNothingFromThisModule(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", func(path string) bool {
		return testutil.ModuleInternalImport(path) || path == "samplecore/testutil"
	}, "pkg/domain must stay dependency-free within the module")
}
