// Package ident implements the canonical identifier scheme used to name
// software entities across ecosystems.
//
// An identifier names a forge, product, version, namespace and entity:
//
//	fasten://[forge!]product[$version]/namespace/entity
//
// The forge and version are optional. The namespace is a forward-slash path
// of module segments and the entity is the final path segment (a function or
// method signature fragment). Namespace and entity preserve all characters,
// including non-ASCII.
//
// Parsing is total and deterministic: the same text always yields the same
// result, and rendering a parsed identifier reproduces a byte-identical
// string when the input was already canonical.
package ident

import (
	"strings"

	"github.com/stitchkb/stitchkb/pkg/errors"
)

// Scheme is the fixed URI scheme for canonical identifiers.
const Scheme = "fasten"

// Separators of the identifier grammar. The forge separator is distinct from
// the version separator so that both can be recovered unambiguously.
const (
	forgeSep   = "!"
	versionSep = "$"
)

// ID is a parsed canonical identifier. Product is the only mandatory field;
// an ID without a product names a bare namespace/entity path (as emitted by
// producers that refer to entities inside the current artifact).
type ID struct {
	Forge     string // package source the product originates from (optional)
	Product   string // product name (mandatory when an authority is present)
	Version   string // product version (optional)
	Namespace string // forward-slash path of module segments
	Entity    string // function/method signature fragment
}

// Parse parses text into an ID. It accepts the canonical scheme-prefixed
// form, the schemeless form emitted by legacy producers ("//product/..."),
// and bare paths with no authority ("/namespace/entity").
//
// Grammar violations (an empty forge, product or version between two
// separators, or a scheme other than "fasten") fail with an
// INVALID_IDENTIFIER error naming the offending component; Parse never
// truncates or guesses.
func Parse(text string) (ID, error) {
	rest := text
	if scheme, ok := splitScheme(rest); ok {
		if scheme != Scheme {
			return ID{}, errors.New(errors.ErrCodeInvalidIdent, "unsupported scheme %q in %q", scheme, text)
		}
		rest = rest[len(scheme)+1:]
	}

	var id ID
	if after, ok := strings.CutPrefix(rest, "//"); ok {
		authority, path, _ := strings.Cut(after, "/")
		if err := parseAuthority(text, authority, &id); err != nil {
			return ID{}, err
		}
		id.Namespace, id.Entity = splitPath(path)
		return id, nil
	}

	// No authority section: the whole text is a namespace/entity path.
	id.Namespace, id.Entity = splitPath(strings.TrimPrefix(rest, "/"))
	return id, nil
}

// parseAuthority fills Forge, Product and Version from the authority section
// ("[forge!]product[$version]").
func parseAuthority(text, authority string, id *ID) error {
	rest := authority
	if forge, after, ok := strings.Cut(rest, forgeSep); ok {
		if forge == "" {
			return errors.New(errors.ErrCodeInvalidIdent, "empty forge in %q", text)
		}
		if strings.Contains(after, forgeSep) {
			return errors.New(errors.ErrCodeInvalidIdent, "repeated forge separator in %q", text)
		}
		id.Forge = forge
		rest = after
	}
	if product, version, ok := strings.Cut(rest, versionSep); ok {
		if version == "" {
			return errors.New(errors.ErrCodeInvalidIdent, "empty version in %q", text)
		}
		if strings.Contains(version, versionSep) {
			return errors.New(errors.ErrCodeInvalidIdent, "repeated version separator in %q", text)
		}
		id.Version = version
		rest = product
	}
	if rest == "" {
		return errors.New(errors.ErrCodeInvalidIdent, "empty product in %q", text)
	}
	id.Product = rest
	return nil
}

// splitScheme detects a "scheme:" prefix: a colon appearing before the first
// slash. Bare paths start with a slash (or contain none before any colon) and
// carry no scheme.
func splitScheme(text string) (string, bool) {
	i := strings.IndexAny(text, ":/")
	if i < 0 || text[i] != ':' {
		return "", false
	}
	return text[:i], true
}

// splitPath splits a path into namespace (everything before the last slash)
// and entity (the final segment). A single segment is the entity.
func splitPath(path string) (namespace, entity string) {
	if path == "" {
		return "", ""
	}
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[:i], path[i+1:]
	}
	return "", path
}

// String renders the canonical form. The scheme and authority are emitted
// only when a product is present, so IDs parsed from bare paths render back
// to bare paths.
func (id ID) String() string {
	if id.Product == "" {
		return "/" + id.path()
	}
	return Scheme + "://" + id.authority() + "/" + id.path()
}

// Schemeless renders the identifier without its scheme, for interop with
// legacy producers that exchange schemeless identifiers.
func (id ID) Schemeless() string {
	if id.Product == "" {
		return "/" + id.path()
	}
	return "//" + id.authority() + "/" + id.path()
}

// IsEmpty reports whether every field of the ID is empty.
func (id ID) IsEmpty() bool {
	return id == ID{}
}

func (id ID) authority() string {
	var b strings.Builder
	if id.Forge != "" {
		b.WriteString(id.Forge)
		b.WriteString(forgeSep)
	}
	b.WriteString(id.Product)
	if id.Version != "" {
		b.WriteString(versionSep)
		b.WriteString(id.Version)
	}
	return b.String()
}

func (id ID) path() string {
	switch {
	case id.Namespace == "":
		return id.Entity
	case id.Entity == "":
		return id.Namespace
	default:
		return id.Namespace + "/" + id.Entity
	}
}
