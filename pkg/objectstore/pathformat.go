package objectstore

import "strings"

// OwnerPlaceholder is the substitution marker a folder template may contain
// at most once
const OwnerPlaceholder = "{0}"

// PathFormatter derives object paths from a folder template, an owner and a
// record key. Formatting is pure: the same inputs always yield the same path.
//
// Owners and keys are substituted verbatim; callers own supplying path-safe
// identifiers.
type PathFormatter struct {
	template         string
	includesFileName bool
}

// NewPathFormatter creates a formatter for the given template.
//
// When includesFileName is false the template is normalized once here: leading
// and trailing path separators are trimmed and a single trailing separator is
// appended, so FolderPath always ends with exactly one "/". When
// includesFileName is true the template already names a specific object and is
// kept verbatim.
func NewPathFormatter(template string, includesFileName bool) *PathFormatter {
	if !includesFileName {
		template = strings.Trim(template, "/") + "/"
	}
	return &PathFormatter{
		template:         template,
		includesFileName: includesFileName,
	}
}

// IncludesFileName reports whether the template itself names the object
func (f *PathFormatter) IncludesFileName() bool {
	return f.includesFileName
}

// FolderPath substitutes owner into the template's placeholder. Templates
// without a placeholder are returned as-is.
func (f *PathFormatter) FolderPath(owner string) string {
	return strings.ReplaceAll(f.template, OwnerPlaceholder, owner)
}

// FilePath resolves the full object path for a record. For collection-style
// templates the key is appended with a ".json" suffix; when the template
// includes the file name the key does not participate in path resolution,
// which intentionally gives one object per owner.
func (f *PathFormatter) FilePath(key, owner string) string {
	folder := f.FolderPath(owner)
	if f.includesFileName {
		return folder
	}
	return folder + key + ".json"
}
