package history

import (
	"context"

	"github.com/roach88/verdant/internal/ir"
)

// BlobKey is the single key of a blob reference object.
const BlobKey = "$blob"

// LiteralKey wraps payload objects that would otherwise read back as a
// blob reference or as a wrapper themselves.
const LiteralKey = "$literal"

// Offload returns a copy of raw with every string value longer than
// threshold bytes replaced by {"$blob": name}, plus the blob contents by
// name. threshold <= 0 disables offloading. Objects shaped like a
// reference are wrapped as {"$literal": object} so Inflate restores them
// verbatim.
func Offload(raw []ir.Payload, threshold int) ([]ir.Payload, map[string][]byte) {
	if raw == nil {
		return nil, nil
	}
	blobs := make(map[string][]byte)
	out := make([]ir.Payload, len(raw))
	for i, p := range raw {
		out[i] = offloadValue(map[string]any(p), threshold, blobs).(map[string]any)
	}
	return out, blobs
}

func offloadValue(v any, threshold int, blobs map[string][]byte) any {
	switch val := v.(type) {
	case string:
		if threshold <= 0 || len(val) <= threshold {
			return val
		}
		data := []byte(val)
		name := ir.BlobName(data)
		blobs[name] = data
		return map[string]any{BlobKey: name}
	case ir.Payload:
		return offloadValue(map[string]any(val), threshold, blobs)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = offloadValue(e, threshold, blobs)
		}
		if reserved(val) {
			return map[string]any{LiteralKey: out}
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = offloadValue(e, threshold, blobs)
		}
		return out
	default:
		return val
	}
}

// reserved reports whether m has the one-key shape of a blob reference or
// a literal wrapper.
func reserved(m map[string]any) bool {
	if len(m) != 1 {
		return false
	}
	_, blob := m[BlobKey]
	_, lit := m[LiteralKey]
	return blob || lit
}

// Inflate replaces blob references in raw with their contents. Names that
// blobs cannot resolve are returned in missing and left as references.
func Inflate(ctx context.Context, raw []ir.Payload, blobs BlobReader) ([]ir.Payload, []string) {
	if raw == nil {
		return nil, nil
	}
	var missing []string
	out := make([]ir.Payload, len(raw))
	for i, p := range raw {
		out[i] = inflateValue(ctx, map[string]any(p), blobs, &missing).(map[string]any)
	}
	return out, missing
}

func inflateValue(ctx context.Context, v any, blobs BlobReader, missing *[]string) any {
	switch val := v.(type) {
	case ir.Payload:
		return inflateValue(ctx, map[string]any(val), blobs, missing)
	case map[string]any:
		if name, ok := blobRef(val); ok {
			if blobs == nil {
				*missing = append(*missing, name)
				return val
			}
			data, err := blobs.ReadBlob(ctx, name)
			if err != nil {
				*missing = append(*missing, name)
				return val
			}
			return string(data)
		}
		if inner, ok := literal(val); ok {
			val = inner
		}
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = inflateValue(ctx, e, blobs, missing)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = inflateValue(ctx, e, blobs, missing)
		}
		return out
	default:
		return val
	}
}

func literal(m map[string]any) (map[string]any, bool) {
	if len(m) != 1 {
		return nil, false
	}
	inner, ok := m[LiteralKey].(map[string]any)
	return inner, ok
}

func blobRef(m map[string]any) (string, bool) {
	if len(m) != 1 {
		return "", false
	}
	name, ok := m[BlobKey].(string)
	return name, ok
}
