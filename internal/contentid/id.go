// Package contentid provides the canonical identifier for catalog content
// items (videos, articles, exercises). The remote progress service sometimes
// returns identifiers carrying a one-character type prefix ("v123", "a456");
// this package is the only place those prefixes are parsed or produced.
// Everything inside the module works with the bare ID.
//
// This is a leaf package with zero external dependencies beyond stdlib.
package contentid

import (
	"database/sql"
	"database/sql/driver"
	"encoding"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPrefixed is returned when a prefixed identifier has an unknown
// type character or no identifier after the prefix.
var ErrInvalidPrefixed = errors.New("contentid: invalid prefixed identifier")

// Kind is the type of content an identifier refers to.
type Kind int

// Content kinds.
const (
	KindUnknown Kind = iota
	KindVideo
	KindArticle
	KindExercise
)

// Wire prefixes used by the bulk progress endpoint.
const (
	prefixVideo   = 'v'
	prefixArticle = 'a'
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindArticle:
		return "article"
	case KindExercise:
		return "exercise"
	default:
		return "unknown"
	}
}

// ParseKind maps a catalog kind name ("video", "Video", "article", ...) to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "video":
		return KindVideo, nil
	case "article":
		return KindArticle, nil
	case "exercise":
		return KindExercise, nil
	default:
		return KindUnknown, fmt.Errorf("contentid: unknown kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}

	*k = parsed

	return nil
}

// ID is a bare content identifier. Surrounding whitespace is trimmed at
// construction. The zero value (ID{}) represents an absent identifier.
type ID struct {
	value string
}

// New creates an ID from a raw bare identifier.
func New(raw string) ID {
	return ID{value: strings.TrimSpace(raw)}
}

// String returns the bare identifier.
func (id ID) String() string {
	return id.value
}

// IsZero reports whether the ID is absent.
func (id ID) IsZero() bool {
	return id.value == ""
}

// ParsePrefixed splits a wire identifier such as "v123" into its kind and
// bare ID.
func ParsePrefixed(s string) (Kind, ID, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return KindUnknown, ID{}, fmt.Errorf("%w: %q", ErrInvalidPrefixed, s)
	}

	var kind Kind

	switch s[0] {
	case prefixVideo:
		kind = KindVideo
	case prefixArticle:
		kind = KindArticle
	default:
		return KindUnknown, ID{}, fmt.Errorf("%w: %q", ErrInvalidPrefixed, s)
	}

	id := New(s[1:])
	if id.IsZero() {
		return KindUnknown, ID{}, fmt.Errorf("%w: %q", ErrInvalidPrefixed, s)
	}

	return kind, id, nil
}

// Prefixed returns the wire form of id for the given kind. Kinds without a
// wire prefix return the bare identifier.
func Prefixed(kind Kind, id ID) string {
	switch kind {
	case KindVideo:
		return string(prefixVideo) + id.value
	case KindArticle:
		return string(prefixArticle) + id.value
	default:
		return id.value
	}
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Input is trimmed just
// like New().
func (id *ID) UnmarshalText(text []byte) error {
	*id = New(string(text))
	return nil
}

// Scan implements sql.Scanner. SQL NULL produces the zero ID.
func (id *ID) Scan(src any) error {
	if src == nil {
		*id = ID{}
		return nil
	}

	switch v := src.(type) {
	case string:
		*id = New(v)
		return nil
	case []byte:
		*id = New(string(v))
		return nil
	case int64:
		*id = New(fmt.Sprintf("%d", v))
		return nil
	default:
		return fmt.Errorf("contentid.ID.Scan: unsupported type %T", src)
	}
}

// Value implements driver.Valuer. The zero ID writes SQL NULL.
func (id ID) Value() (driver.Value, error) {
	if id.IsZero() {
		return nil, nil
	}

	return id.value, nil
}

// Compile-time interface assertions.
var (
	_ encoding.TextMarshaler   = ID{}
	_ encoding.TextUnmarshaler = (*ID)(nil)
	_ encoding.TextMarshaler   = Kind(0)
	_ encoding.TextUnmarshaler = (*Kind)(nil)
	_ fmt.Stringer             = ID{}
	_ driver.Valuer            = ID{}
	_ sql.Scanner              = (*ID)(nil)
)
