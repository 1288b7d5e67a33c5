package capabilities_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wazervm/wazervm/capabilities"
)

func TestFromExportNamesEmpty(t *testing.T) {
	caps := capabilities.FromExportNames([]string{"allocate", "deallocate", "instantiate"})
	assert.Empty(t, caps)
}

func TestFromExportNamesMixed(t *testing.T) {
	names := []string{
		"requires_water",
		"requires_",
		"requires_nutrients",
		"require_milk",
		"REQUIRES_air",
		"requires_sun",
	}
	caps := capabilities.FromExportNames(names)
	assert.Len(t, caps, 3)
	assert.Contains(t, caps, "water")
	assert.Contains(t, caps, "nutrients")
	assert.Contains(t, caps, "sun")
	assert.NotContains(t, caps, "")
	assert.NotContains(t, caps, "air")
	assert.NotContains(t, caps, "milk")
}
