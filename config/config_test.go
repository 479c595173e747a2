package config

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

const doc = `{
	"feeds": {
		"itch": {
			"ifc": "eth1",
			"sources": ["233.54.12.111", "233.54.12.112"],
			"port": 26477,
			"capacity": 8388608,
			"tsp": "sw",
			"enabled": true
		}
	},
	"groups": "239.1.1.1, 239.1.1.2",
	"ratio": 1.5
}`

func TestScopeLookups(t *testing.T) {
	s, err := Parse([]byte(doc))
	require.NoError(t, err)

	itch := s.Scope("/feeds/itch")
	require.Equal(t, "/feeds/itch", itch.Path())
	require.Equal(t, "eth1", itch.String("ifc", ""))
	require.Equal(t, 26477, itch.Int("port", 0))
	require.Equal(t, 8388608, itch.MustInt("capacity"))
	require.Equal(t, "sw", itch.MustString("tsp"))
	require.True(t, itch.Bool("enabled", false))
	require.Equal(t, []string{"233.54.12.111", "233.54.12.112"}, itch.Strings("sources"))

	keys := itch.Keys()
	sort.Strings(keys)
	require.Equal(t, []string{"capacity", "enabled", "ifc", "port", "sources", "tsp"}, keys)

	// Relative scopes compose.
	require.Equal(t, "eth1", s.Scope("feeds").Scope("itch").String("ifc", ""))
}

func TestDefaultsAndTypes(t *testing.T) {
	s, err := Parse([]byte(doc))
	require.NoError(t, err)

	missing := s.Scope("/feeds/ouch")
	require.False(t, missing.Has("ifc"))
	require.Equal(t, 7, missing.Int("port", 7))
	require.Equal(t, "hw", missing.String("tsp", "hw"))
	require.Nil(t, missing.Strings("sources"))

	require.Equal(t, []string{"239.1.1.1", "239.1.1.2"}, s.Strings("groups"))
	require.Equal(t, 3, s.Int("ratio", 3), "non-integral numbers fall back")
	require.Equal(t, "x", s.Scope("feeds").String("itch", "x"), "objects are not strings")

	defer func() {
		err, _ := recover().(error)
		require.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	}()
	missing.MustString("ifc")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "eth1", s.Scope("/feeds/itch").String("ifc", ""))

	_, err = Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)

	_, err = Parse([]byte("{"))
	require.Error(t, err)
}
