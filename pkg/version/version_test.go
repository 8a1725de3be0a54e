package version

import (
	"encoding/json"
	"regexp"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion_SemverOrDev(t *testing.T) {
	if Version == "dev" {
		return
	}
	semver := regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)
	assert.Regexp(t, semver, Version)
}

func TestString(t *testing.T) {
	str := String()
	assert.Contains(t, str, "docrag "+Version)
	assert.Contains(t, str, "commit:")
	assert.Contains(t, str, runtime.Version())
	assert.Equal(t, Version, Short())
}

func TestGetInfo_JSON(t *testing.T) {
	// Given the build info
	info := GetInfo()

	// When encoding it
	data, err := json.Marshal(info)
	require.NoError(t, err)

	// Then every field is present with the snake_case names
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(data, &decoded))
	for _, key := range []string{"version", "commit", "date", "go_version", "os", "arch"} {
		assert.Contains(t, decoded, key)
	}
	assert.Equal(t, runtime.GOOS, decoded["os"])
	assert.NotEmpty(t, decoded["commit"])
}

func TestGetInfo_LdflagsWin(t *testing.T) {
	prev := Commit
	t.Cleanup(func() { Commit = prev })

	Commit = "abc1234"
	assert.Equal(t, "abc1234", GetInfo().Commit)
}
