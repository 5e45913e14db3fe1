// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// LoadJSON reads a JSON object from testdata/name. If target is provided, the
// document is also unmarshalled into it.
func LoadJSON(name string, target ...any) (map[string]any, error) {
	_, currentFile, _, _ := runtime.Caller(0)
	data, err := os.ReadFile(filepath.Join(filepath.Dir(currentFile), "testdata", name))
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	if len(target) > 0 && target[0] != nil {
		if err := json.Unmarshal(data, target[0]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// MustLoadJSON is LoadJSON failing the test on error.
func MustLoadJSON(t testing.TB, name string, target any) map[string]any {
	t.Helper()
	result, err := LoadJSON(name, target)
	require.NoError(t, err)
	return result
}
