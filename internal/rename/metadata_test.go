package rename

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Oak Garden Bench", "oak-garden-bench"},
		{"  Trimmed  Spaces  ", "trimmed-spaces"},
		{"snake_case_name", "snake-case-name"},
		{"IMG_4312.jpg", "img-4312-jpg"},
		{"Ünïcödé läuft", "ünïcödé-läuft"},
		{"!!!", ""},
		{"", ""},
		{"---already-hyphenated---", "already-hyphenated"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), "input %q", tt.in)
	}
}

func TestSlugify_LengthBound(t *testing.T) {
	long := strings.Repeat("word ", 40)
	slug := Slugify(long)
	assert.LessOrEqual(t, len(slug), maxSlugLength)
	assert.False(t, strings.HasSuffix(slug, "-"))
}

func TestMetadataName_PreferenceOrder(t *testing.T) {
	res := &Resource{
		ID:       "res-1",
		Filename: "IMG_4312.jpg",
		Title:    "Oak Garden Bench",
		AltText:  "a wooden bench",
	}

	name, err := MetadataName(res)
	require.NoError(t, err)
	assert.Equal(t, "oak-garden-bench", name)

	res.Title = ""
	name, err = MetadataName(res)
	require.NoError(t, err)
	assert.Equal(t, "a-wooden-bench", name)

	res.AltText = ""
	name, err = MetadataName(res)
	require.NoError(t, err)
	assert.Equal(t, "img-4312", name)
}

func TestMetadataName_NoUsableMetadata(t *testing.T) {
	_, err := MetadataName(&Resource{ID: "res-1", Filename: "...."})
	require.Error(t, err)
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("oak-garden-bench"))
	assert.True(t, ValidName("img-4312"))
	assert.False(t, ValidName(""))
	assert.False(t, ValidName("Has Upper"))
	assert.False(t, ValidName("-leading"))
	assert.False(t, ValidName("trailing-"))
	assert.False(t, ValidName(strings.Repeat("a", maxSlugLength+1)))
}
