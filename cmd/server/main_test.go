package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-journey/internal/mission"
)

const testCatalog = `missions:
  - id: RET1
    vertical: BFSI
    title: Card Retention
    kind: retention
    stages:
      - {id: active, label: Active, ordinal: 0}
      - {id: lapsing, label: Lapsing, ordinal: 1}
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCatalogValidate_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0644))

	out, err := execute(t, "catalog", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "OK (1 missions, 2 stages)")
}

func TestCatalogValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("missions:\n  - id: X\n    stages: []\n"), 0644))

	_, err := execute(t, "catalog", "validate", path)
	assert.ErrorIs(t, err, mission.ErrCatalogLoad)
}

func TestMissions_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0644))

	out, err := execute(t, "missions", path)
	require.NoError(t, err)
	assert.Contains(t, out, "RET1")
	assert.Contains(t, out, "Active -> Lapsing")
}

func TestPrintMissions_Default(t *testing.T) {
	var out bytes.Buffer
	printMissions(&out, mission.Default())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 8)
	assert.Contains(t, lines[0], "MSN001")
	assert.Contains(t, lines[1], "Loyal Member -> Opportunity Detected -> Consideration -> Multi-Product Member")
}

func TestLoadCatalog_EmptyPathIsDefault(t *testing.T) {
	c, err := loadCatalog("")
	require.NoError(t, err)
	assert.Len(t, c.ListMissions(), 4)
}

func TestCloser_ReverseOrder(t *testing.T) {
	var order []int
	var c closer
	for i := 1; i <= 3; i++ {
		c.add(func() { order = append(order, i) })
	}
	c.run()
	assert.Equal(t, []int{3, 2, 1}, order)
}
