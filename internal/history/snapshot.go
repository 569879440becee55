package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"

	"github.com/roach88/verdant/internal/ir"
)

// Snapshot is the stable serialized form of a Store: one array of histories
// per artifact kind. Pending slots and unsaved nodes are never serialized.
type Snapshot struct {
	SchemaVersion string                       `json:"schema_version"`
	Artifacts     map[ir.Kind][]HistoryRecord `json:"artifacts"`
}

// HistoryRecord is one artifact's committed versions.
type HistoryRecord struct {
	ArtifactName string          `json:"artifact_name"`
	Versions     []VersionRecord `json:"versions"`
}

// VersionRecord is one committed version. Only the fields of the
// artifact's kind are populated.
type VersionRecord struct {
	StartCheckpoint int     `json:"start_checkpoint"`
	Parent          ir.Name `json:"parent"`
	// Origin is written on the last record of a switched artifact.
	Origin *ir.Name `json:"origin,omitempty"`

	Type    string          `json:"type,omitempty"`
	Content []ContentRecord `json:"content,omitempty"`
	Start   *ir.Pos         `json:"start,omitempty"`
	End     *ir.Pos         `json:"end,omitempty"`
	Literal *string         `json:"literal,omitempty"`
	Right   *ir.Name        `json:"right,omitempty"`
	Output  *ir.Ref         `json:"output,omitempty"`

	Text *string `json:"text,omitempty"`

	Raw []ir.Payload `json:"raw,omitempty"`

	Cells []ir.Name `json:"cells,omitempty"`
}

// ContentRecord is a content entry: exactly one of Child or Token is set.
type ContentRecord struct {
	Child *ir.Name `json:"child,omitempty"`
	Token *string  `json:"token,omitempty"`
}

// BlobReader resolves offloaded payload values.
type BlobReader interface {
	ReadBlob(ctx context.Context, name string) ([]byte, error)
}

// Encode serializes the committed state of s. Output string values longer
// than blobThreshold bytes are replaced by blob references and returned by
// name in blobs; blobThreshold <= 0 disables offloading. The snapshot is
// only restorable once every returned blob is stored.
func Encode(s *Store, blobThreshold int) (data []byte, blobs map[string][]byte, err error) {
	blobs = make(map[string][]byte)
	snap := Snapshot{
		SchemaVersion: ir.SnapshotVersion,
		Artifacts:     make(map[ir.Kind][]HistoryRecord),
	}
	for _, kind := range ir.Kinds {
		hs := s.histories[kind]
		if len(hs) == 0 {
			continue
		}
		records := make([]HistoryRecord, len(hs))
		for i, h := range hs {
			rec := HistoryRecord{
				ArtifactName: h.ref.String(),
				Versions:     make([]VersionRecord, len(h.versions)),
			}
			for v, n := range h.versions {
				vr, err := encodeNode(n, blobThreshold, blobs)
				if err != nil {
					return nil, nil, fmt.Errorf("encode %s: %w", ir.NameOf(n), err)
				}
				rec.Versions[v] = vr
			}
			if h.origin != nil && len(rec.Versions) > 0 {
				origin := *h.origin
				rec.Versions[len(rec.Versions)-1].Origin = &origin
			}
			records[i] = rec
		}
		snap.Artifacts[kind] = records
	}
	data, err = json.Marshal(snap)
	if err != nil {
		return nil, nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, blobs, nil
}

func encodeNode(n ir.Node, blobThreshold int, blobs map[string][]byte) (VersionRecord, error) {
	m := n.Base()
	rec := VersionRecord{StartCheckpoint: m.Created, Parent: m.Parent}
	switch v := n.(type) {
	case *ir.Notebook:
		rec.Cells = append([]ir.Name(nil), v.Cells...)
	case *ir.CodeCell:
		encodeTree(&rec, &v.Tree)
		if !v.Output.IsZero() {
			out := v.Output
			rec.Output = &out
		}
	case *ir.Syntax:
		encodeTree(&rec, &v.Tree)
	case *ir.Markdown:
		text := v.Text
		rec.Text = &text
	case *ir.RawCell:
		text := v.Text
		rec.Text = &text
	case *ir.Output:
		raw, offloaded := Offload(v.Raw, blobThreshold)
		rec.Raw = raw
		maps.Copy(blobs, offloaded)
	default:
		return rec, fmt.Errorf("unknown node type %T", n)
	}
	return rec, nil
}

func encodeTree(rec *VersionRecord, t *ir.Tree) {
	rec.Type = t.Type
	start, end := t.Start, t.End
	rec.Start, rec.End = &start, &end
	if t.Literal != nil {
		lit := *t.Literal
		rec.Literal = &lit
	}
	if !t.Right.IsZero() {
		right := t.Right
		rec.Right = &right
	}
	for _, c := range t.Content {
		if c.IsToken() {
			tok := c.Token
			rec.Content = append(rec.Content, ContentRecord{Token: &tok})
		} else {
			child := c.Child
			rec.Content = append(rec.Content, ContentRecord{Child: &child})
		}
	}
}

// Decode rebuilds a Store from a serialized snapshot. Blob references are
// inflated through blobs when it is non-nil; a blob that cannot be read
// keeps its reference and is logged to logger (slog.Default when nil).
func Decode(ctx context.Context, data []byte, blobs BlobReader, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.SchemaVersion != ir.SnapshotVersion {
		return nil, fmt.Errorf("decode snapshot: unsupported schema version %q", snap.SchemaVersion)
	}
	s := New()
	for kind, records := range snap.Artifacts {
		if !kind.Valid() {
			return nil, fmt.Errorf("decode snapshot: unknown kind %q", kind)
		}
		hs := make([]*History, len(records))
		for id, rec := range records {
			ref, err := ir.ParseRef(rec.ArtifactName)
			if err != nil {
				return nil, fmt.Errorf("decode snapshot: %w", err)
			}
			if ref.Kind != kind || ref.ID != id {
				return nil, fmt.Errorf("decode snapshot: %s stored at %s.%d", ref, kind, id)
			}
			if len(rec.Versions) == 0 {
				return nil, fmt.Errorf("decode snapshot: %s has no versions", ref)
			}
			h := &History{ref: ref, versions: make([]ir.Node, len(rec.Versions))}
			for v, vr := range rec.Versions {
				n, err := decodeNode(ctx, ref.At(v), vr, blobs, logger)
				if err != nil {
					return nil, fmt.Errorf("decode snapshot: %w", err)
				}
				h.versions[v] = n
				if vr.Origin != nil {
					origin := *vr.Origin
					h.origin = &origin
				}
			}
			hs[id] = h
		}
		s.histories[kind] = hs
	}
	return s, nil
}

func decodeNode(ctx context.Context, name ir.Name, vr VersionRecord, blobs BlobReader, logger *slog.Logger) (ir.Node, error) {
	n, err := ir.New(name.Kind)
	if err != nil {
		return nil, err
	}
	m := n.Base()
	m.ID = name.ID
	m.Version = name.Version
	m.Created = vr.StartCheckpoint
	m.Parent = vr.Parent

	switch v := n.(type) {
	case *ir.Notebook:
		v.Cells = append([]ir.Name(nil), vr.Cells...)
	case *ir.CodeCell:
		if err := decodeTree(name, vr, &v.Tree); err != nil {
			return nil, err
		}
		if vr.Output != nil {
			v.Output = *vr.Output
		}
	case *ir.Syntax:
		if err := decodeTree(name, vr, &v.Tree); err != nil {
			return nil, err
		}
	case *ir.Markdown:
		if vr.Text != nil {
			v.Text = *vr.Text
		}
	case *ir.RawCell:
		if vr.Text != nil {
			v.Text = *vr.Text
		}
	case *ir.Output:
		raw, missing := Inflate(ctx, vr.Raw, blobs)
		for _, blob := range missing {
			logger.Warn("blob unavailable, keeping reference", "artifact", name.String(), "blob", blob)
		}
		v.Raw = raw
	}
	return n, nil
}

func decodeTree(name ir.Name, vr VersionRecord, t *ir.Tree) error {
	t.Type = vr.Type
	if vr.Start != nil {
		t.Start = *vr.Start
	}
	if vr.End != nil {
		t.End = *vr.End
	}
	if vr.Literal != nil {
		lit := *vr.Literal
		t.Literal = &lit
	}
	if vr.Right != nil {
		t.Right = *vr.Right
	}
	for i, c := range vr.Content {
		switch {
		case c.Child != nil && c.Token == nil:
			t.Content = append(t.Content, ir.ChildItem(*c.Child))
		case c.Token != nil && c.Child == nil:
			t.Content = append(t.Content, ir.TokenItem(*c.Token))
		default:
			return fmt.Errorf("%s: content[%d] must set exactly one of child or token", name, i)
		}
	}
	return nil
}
