package storefront

import (
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// The repository scans SELECT * into Inventory, so the struct's db tags and
// the table's columns must match in both directions.
func TestInventory_ColumnsMatchSchema(t *testing.T) {
	ddl, err := os.ReadFile("../../../../db/migrations/00001_inventory.sql")
	require.NoError(t, err)

	start := strings.Index(string(ddl), "CREATE TABLE inv_storefront_inventory")
	require.GreaterOrEqual(t, start, 0, "inv_storefront_inventory table not found in migration")
	table := string(ddl)[start:]
	end := strings.Index(table, ");")
	require.GreaterOrEqual(t, end, 0)

	columns := make(map[string]bool)
	for _, line := range strings.Split(table[:end], "\n")[1:] {
		fields := strings.Fields(line)
		if len(fields) == 0 || strings.EqualFold(fields[0], "PRIMARY") {
			continue
		}
		columns[fields[0]] = true
	}

	typ := reflect.TypeOf(Inventory{})
	tags := make(map[string]bool)
	for i := 0; i < typ.NumField(); i++ {
		tag := typ.Field(i).Tag.Get("db")
		require.True(t, columns[tag], "field %s maps to column %q which the table lacks", typ.Field(i).Name, tag)
		tags[tag] = true
	}
	for col := range columns {
		require.True(t, tags[col], "column %q has no struct field to scan into", col)
	}
}
