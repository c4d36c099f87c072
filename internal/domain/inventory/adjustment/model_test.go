package adjustment

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Every kind the domain accepts must also pass the schema CHECK, otherwise
// Apply validates an entry and the insert still fails.
func TestValidKinds_AcceptedBySchema(t *testing.T) {
	ddl, err := os.ReadFile("../../../../db/migrations/00001_inventory.sql")
	require.NoError(t, err)

	start := strings.Index(string(ddl), "CREATE TABLE inv_adjustments")
	require.GreaterOrEqual(t, start, 0, "inv_adjustments table not found in migration")
	table := string(ddl)[start:]
	if end := strings.Index(table, ");"); end >= 0 {
		table = table[:end]
	}

	for _, k := range ValidKinds {
		require.Contains(t, table, "'"+string(k)+"'", "kind %q missing from schema check", k)
	}
}
