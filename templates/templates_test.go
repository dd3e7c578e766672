package templates

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForDriver(t *testing.T) {
	for _, driver := range []string{"godror", "postgres", "sqlite3"} {
		d, ok := ForDriver(driver)
		require.True(t, ok, driver)
		assert.NotEmpty(t, d.ListTables)
		assert.Equal(t, 1, strings.Count(d.DropTable, "%s"))
	}

	_, ok := ForDriver("mystery")
	assert.False(t, ok)
}
