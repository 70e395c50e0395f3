package templates

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonathan/persona-transformer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_CoverEveryFormat(t *testing.T) {
	seen := map[types.OutputFormat]bool{}
	for _, tmpl := range Defaults() {
		tmpl := tmpl
		require.NoError(t, Validate(&tmpl))
		seen[tmpl.Format] = true
		assert.Equal(t, DefaultID(tmpl.Format), tmpl.ID)
	}
	for _, f := range types.AllFormats {
		assert.True(t, seen[f], "missing default for %s", f)
	}
}

func TestRegistry_LookupPrefersPersonaScoped(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()

	_, err := r.Put(ctx, &types.Template{ID: "cfo-summary", Format: types.FormatSummary, PersonaID: "cfo", Rules: types.TemplateRules{MaxWords: 120}})
	require.NoError(t, err)

	got, err := r.Lookup(ctx, types.FormatSummary, "cfo")
	require.NoError(t, err)
	assert.Equal(t, "cfo-summary", got.ID)

	got, err = r.Lookup(ctx, types.FormatSummary, "engineer")
	require.NoError(t, err)
	assert.Equal(t, DefaultID(types.FormatSummary), got.ID)

	got, err = r.Lookup(ctx, types.FormatSummary, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultID(types.FormatSummary), got.ID)
}

func TestRegistry_PutBumpsVersion(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()

	tmpl, err := r.Get(ctx, DefaultID(types.FormatThread))
	require.NoError(t, err)
	assert.Equal(t, 1, tmpl.Version)

	tmpl.Rules.MaxSegmentChars = 200
	updated, err := r.Put(ctx, tmpl)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	again, err := r.Get(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 200, again.Rules.MaxSegmentChars)
}

func TestRegistry_GetNotFound(t *testing.T) {
	_, err := NewRegistry().Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrTemplateNotFound))
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	tmpl, err := r.Get(ctx, DefaultID(types.FormatSlides))
	require.NoError(t, err)
	tmpl.Style["theme"] = "dark"

	again, err := r.Get(ctx, DefaultID(types.FormatSlides))
	require.NoError(t, err)
	assert.Equal(t, "light", again.Style["theme"])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		tmpl    types.Template
		wantErr bool
	}{
		{"valid", types.Template{ID: "a", Format: types.FormatBlog}, false},
		{"missing id", types.Template{Format: types.FormatBlog}, true},
		{"unknown format", types.Template{ID: "a", Format: "podcast"}, true},
		{"inverted segment bounds", types.Template{ID: "a", Format: types.FormatThread, Rules: types.TemplateRules{MinSegments: 5, MaxSegments: 2}}, true},
		{"inverted slide bounds", types.Template{ID: "a", Format: types.FormatSlides, Rules: types.TemplateRules{MinSlides: 5, MaxSlides: 2}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.tmpl)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseTemplateYAML(t *testing.T) {
	data := []byte(`
id: dev-thread
name: Developer thread
format: Thread
persona_id: dev
rules:
  max_segment_chars: 240
  hook_max_chars: 120
style:
  emoji: "off"
`)
	tmpl, err := ParseTemplateYAML(data)
	require.NoError(t, err)
	assert.Equal(t, types.FormatThread, tmpl.Format)
	assert.Equal(t, 240, tmpl.Rules.MaxSegmentChars)
	assert.Equal(t, 120, tmpl.Rules.HookMaxChars)
	assert.Equal(t, "off", tmpl.Style["emoji"])

	_, err = ParseTemplateYAML([]byte("   "))
	assert.Error(t, err)

	_, err = ParseTemplateYAML([]byte("id: x\nformat: podcast\n"))
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("id: cfo-summary\nformat: summary\npersona_id: cfo\nrules:\n  max_words: 100\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("id: default-blog\nformat: blog\nrules:\n  min_headings: 3\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	ctx := context.Background()
	r := NewRegistry()
	n, err := r.LoadDir(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	blog, err := r.Get(ctx, "default-blog")
	require.NoError(t, err)
	assert.Equal(t, 3, blog.Rules.MinHeadings)
	assert.Equal(t, 2, blog.Version, "overriding a default is a new version")

	cfo, err := r.Lookup(ctx, types.FormatSummary, "cfo")
	require.NoError(t, err)
	assert.Equal(t, 100, cfo.Rules.MaxWords)
}

func TestLoadDir_MissingAndDuplicate(t *testing.T) {
	loaded, err := LoadDir(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, loaded)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("id: same\nformat: blog\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("id: same\nformat: thread\n"), 0644))
	_, err = LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id")
}
