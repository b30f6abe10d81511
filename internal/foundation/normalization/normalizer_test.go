package normalization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backend string

const (
	backendCLI   backend = "cli"
	backendGoGit backend = "gogit"
)

func newBackendNormalizer() *Normalizer[backend] {
	return NewNormalizer(map[string]backend{
		"cli":   backendCLI,
		"gogit": backendGoGit,
	}, backendCLI)
}

func TestNormalizer_Normalize(t *testing.T) {
	n := newBackendNormalizer()

	tests := []struct {
		name     string
		input    string
		expected backend
	}{
		{"exact match", "gogit", backendGoGit},
		{"case insensitive", "GoGit", backendGoGit},
		{"with spaces", "  cli  ", backendCLI},
		{"invalid input", "svn", backendCLI},
		{"empty", "", backendCLI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, n.Normalize(tt.input))
		})
	}
}

func TestNormalizer_Parse(t *testing.T) {
	n := newBackendNormalizer()

	v, err := n.Parse(" CLI ")
	require.NoError(t, err)
	assert.Equal(t, backendCLI, v)

	_, err = n.Parse("svn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cli, gogit")
}

func TestNormalizer_ValidKeysIsCopy(t *testing.T) {
	n := newBackendNormalizer()
	keys := n.ValidKeys()
	keys[0] = "mutated"
	assert.Equal(t, []string{"cli", "gogit"}, n.ValidKeys())
}
