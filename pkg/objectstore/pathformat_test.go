package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatterFolderPath(t *testing.T) {
	tests := []struct {
		name             string
		template         string
		includesFileName bool
		owner            string
		want             string
	}{
		{"owner substitution", "users/{0}/sessions", false, "me", "users/me/sessions/"},
		{"no placeholder", "global/settings", false, "me", "global/settings/"},
		{"empty owner substitutes verbatim", "users/{0}/sessions", false, "", "users//sessions/"},
		{"leading and trailing separators trimmed", "/users/{0}/sessions///", false, "me", "users/me/sessions/"},
		{"includes file name kept verbatim", "users/{0}/profile.json", true, "me", "users/me/profile.json"},
		{"includes file name keeps separators", "/users/{0}/profile.json", true, "me", "/users/me/profile.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewPathFormatter(tt.template, tt.includesFileName)
			assert.Equal(t, tt.want, f.FolderPath(tt.owner))
		})
	}
}

func TestFormatterFilePath(t *testing.T) {
	t.Run("collection style appends key and json suffix", func(t *testing.T) {
		f := NewPathFormatter("users/{0}/sessions", false)
		assert.Equal(t, "users/me/sessions/123.json", f.FilePath("123", "me"))
	})

	t.Run("profile style ignores key", func(t *testing.T) {
		f := NewPathFormatter("users/{0}/profile.json", true)
		assert.Equal(t, "users/me/profile.json", f.FilePath("123", "me"))
		assert.Equal(t, "users/me/profile.json", f.FilePath("anything", "me"))
		assert.Equal(t, "users/me/profile.json", f.FilePath("", "me"))
	})

	t.Run("deterministic", func(t *testing.T) {
		f := NewPathFormatter("users/{0}/sessions", false)
		first := f.FilePath("abc", "me")
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, f.FilePath("abc", "me"))
		}
	})

	t.Run("distinct keys yield distinct paths", func(t *testing.T) {
		f := NewPathFormatter("users/{0}/sessions", false)
		assert.NotEqual(t, f.FilePath("a", "me"), f.FilePath("b", "me"))
	})

	t.Run("distinct owners share the template prefix", func(t *testing.T) {
		f := NewPathFormatter("users/{0}/sessions", false)
		assert.Equal(t, "users/a/sessions/k.json", f.FilePath("k", "a"))
		assert.Equal(t, "users/b/sessions/k.json", f.FilePath("k", "b"))
	})
}
