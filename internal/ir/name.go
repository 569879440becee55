package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags an artifact variant.
type Kind string

const (
	KindNotebook Kind = "Notebook"
	KindCodeCell Kind = "CodeCell"
	KindSyntax   Kind = "Syntax"
	KindMarkdown Kind = "Markdown"
	KindRawCell  Kind = "RawCell"
	KindOutput   Kind = "Output"

	// KindTemp names unsaved syntax nodes. ID holds the owning cell id and
	// Version holds the per-owner counter.
	KindTemp Kind = "TEMP"
)

// Kinds lists every persisted artifact kind in snapshot order.
var Kinds = []Kind{KindNotebook, KindCodeCell, KindSyntax, KindMarkdown, KindRawCell, KindOutput}

// Valid reports whether k is a persisted artifact kind.
func (k Kind) Valid() bool {
	switch k {
	case KindNotebook, KindCodeCell, KindSyntax, KindMarkdown, KindRawCell, KindOutput:
		return true
	}
	return false
}

// IsCell reports whether k can occupy a notebook slot.
func (k Kind) IsCell() bool {
	return k == KindCodeCell || k == KindMarkdown || k == KindRawCell
}

// PendingVersion marks the staging slot of an artifact.
const PendingVersion = -1

// Ref identifies an artifact independent of version.
type Ref struct {
	Kind Kind
	ID   int
}

func (r Ref) String() string {
	return fmt.Sprintf("%s.%d", r.Kind, r.ID)
}

// IsZero reports whether r is unset.
func (r Ref) IsZero() bool {
	return r.Kind == ""
}

// At returns the name of version v of r.
func (r Ref) At(v int) Name {
	return Name{Kind: r.Kind, ID: r.ID, Version: v}
}

// Pending returns the staging name of r.
func (r Ref) Pending() Name {
	return r.At(PendingVersion)
}

// Name identifies one version of an artifact, or its pending slot.
type Name struct {
	Kind    Kind
	ID      int
	Version int
}

// Ref drops the version.
func (n Name) Ref() Ref {
	return Ref{Kind: n.Kind, ID: n.ID}
}

// IsZero reports whether n is unset.
func (n Name) IsZero() bool {
	return n.Kind == ""
}

// IsPending reports whether n names a staging slot.
func (n Name) IsPending() bool {
	return n.Kind != KindTemp && n.Kind != "" && n.Version == PendingVersion
}

// IsTemp reports whether n names an unsaved node.
func (n Name) IsTemp() bool {
	return n.Kind == KindTemp
}

// IsCommitted reports whether n names a permanent version.
func (n Name) IsCommitted() bool {
	return n.Kind.Valid() && n.Version >= 0
}

func (n Name) String() string {
	if n.IsZero() {
		return ""
	}
	if n.IsPending() {
		return fmt.Sprintf("%s.%d.*", n.Kind, n.ID)
	}
	return fmt.Sprintf("%s.%d.%d", n.Kind, n.ID, n.Version)
}

// MarshalText encodes n in its string form.
func (n Name) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText decodes the string form of a name.
func (n *Name) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*n = Name{}
		return nil
	}
	parsed, err := ParseName(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// ParseName parses "Kind.id.version" or "Kind.id.*".
func ParseName(s string) (Name, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Name{}, fmt.Errorf("invalid name %q: want Kind.id.version", s)
	}
	kind := Kind(parts[0])
	if !kind.Valid() && kind != KindTemp {
		return Name{}, fmt.Errorf("invalid name %q: unknown kind %q", s, parts[0])
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil || id < 0 {
		return Name{}, fmt.Errorf("invalid name %q: bad id", s)
	}
	if parts[2] == "*" {
		if kind == KindTemp {
			return Name{}, fmt.Errorf("invalid name %q: temp names have no pending slot", s)
		}
		return Name{Kind: kind, ID: id, Version: PendingVersion}, nil
	}
	v, err := strconv.Atoi(parts[2])
	if err != nil || v < 0 {
		return Name{}, fmt.Errorf("invalid name %q: bad version", s)
	}
	return Name{Kind: kind, ID: id, Version: v}, nil
}

// ParseRef parses "Kind.id". A trailing version is accepted and dropped.
func ParseRef(s string) (Ref, error) {
	parts := strings.Split(s, ".")
	if len(parts) == 3 {
		n, err := ParseName(s)
		if err != nil {
			return Ref{}, err
		}
		return n.Ref(), nil
	}
	if len(parts) != 2 {
		return Ref{}, fmt.Errorf("invalid ref %q: want Kind.id", s)
	}
	kind := Kind(parts[0])
	if !kind.Valid() {
		return Ref{}, fmt.Errorf("invalid ref %q: unknown kind %q", s, parts[0])
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil || id < 0 {
		return Ref{}, fmt.Errorf("invalid ref %q: bad id", s)
	}
	return Ref{Kind: kind, ID: id}, nil
}

// MarshalText encodes r as "Kind.id".
func (r Ref) MarshalText() ([]byte, error) {
	if r.IsZero() {
		return []byte{}, nil
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes "Kind.id".
func (r *Ref) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*r = Ref{}
		return nil
	}
	parsed, err := ParseRef(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
