package ir

import "fmt"

// Content is one entry of a syntax node's content list: either a child
// artifact or an inert filler token.
type Content struct {
	Child Name
	Token string
}

// ChildItem returns a content entry pointing at a child artifact.
func ChildItem(n Name) Content {
	return Content{Child: n}
}

// TokenItem returns a filler token entry.
func TokenItem(s string) Content {
	return Content{Token: s}
}

// IsToken reports whether c is filler.
func (c Content) IsToken() bool {
	return c.Child.IsZero()
}

// Pos is a source position. Line is 1-based, Col is a 0-based byte column.
type Pos struct {
	Line int `json:"line"`
	Col  int `json:"ch"`
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Less orders positions by line then column.
func (p Pos) Less(q Pos) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Col < q.Col
}

// Advance returns the position reached after text starting at p.
func (p Pos) Advance(text string) Pos {
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			p.Line++
			p.Col = 0
		} else {
			p.Col++
		}
	}
	return p
}

// Offset translates p, given relative to a fragment starting at base,
// into the enclosing coordinate space. Columns move only on the first line.
func (p Pos) Offset(base Pos) Pos {
	if p.Line == 1 {
		return Pos{Line: base.Line, Col: base.Col + p.Col}
	}
	return Pos{Line: base.Line + p.Line - 1, Col: p.Col}
}
