// Package config loads verdant.cue project settings. The file holds a
// single top-level verdant struct which is unified against the embedded
// #Config schema; anything it leaves unset takes the schema default.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/verdant/internal/match"
)

// FileName is the conventional config file name.
const FileName = "verdant.cue"

//go:embed schema.cue
var schemaSource string

// Match mirrors match.Options.
type Match struct {
	MinSimilarity float64 `json:"min_similarity"`
	MaxDepthDelta int     `json:"max_depth_delta"`
	MinVoteRatio  float64 `json:"min_vote_ratio"`
}

// Config is the decoded verdant struct.
type Config struct {
	Database      string `json:"database"`
	Notebook      string `json:"notebook"`
	Language      string `json:"language"`
	BlobThreshold int    `json:"blob_threshold"`
	Match         Match  `json:"match"`
	LogLevel      string `json:"log_level"`
}

// Error reports an invalid config file.
type Error struct {
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// Default returns the schema defaults.
func Default() Config {
	cfg, err := Parse("default", nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	return cfg
}

// Load reads path. A missing file yields Default.
func Load(path string) (Config, error) {
	src, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, src)
}

// Parse decodes src, attributing errors to filename.
func Parse(filename string, src []byte) (Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, wrap(err)
	}
	value := schema.LookupPath(cue.ParsePath("#Config"))

	if len(src) > 0 {
		file := ctx.CompileBytes(src, cue.Filename(filename))
		if err := file.Err(); err != nil {
			return Config{}, wrap(err)
		}
		if v := file.LookupPath(cue.ParsePath("verdant")); v.Exists() {
			value = value.Unify(v)
		}
	}

	if err := value.Validate(cue.Concrete(true)); err != nil {
		return Config{}, wrap(err)
	}
	var cfg Config
	if err := value.Decode(&cfg); err != nil {
		return Config{}, wrap(err)
	}
	return cfg, nil
}

func wrap(err error) error {
	e := &Error{Message: err.Error()}
	var ce cueerrors.Error
	if errors.As(err, &ce) {
		e.Pos = ce.Position()
		format, args := ce.Msg()
		e.Message = fmt.Sprintf(format, args...)
	}
	return e
}

// MatchOptions converts the match block.
func (c Config) MatchOptions() match.Options {
	return match.Options{
		MinSimilarity: c.Match.MinSimilarity,
		MaxDepthDelta: c.Match.MaxDepthDelta,
		MinVoteRatio:  c.Match.MinVoteRatio,
	}
}

// Level maps log_level to a slog level.
func (c Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
