package bridge

import (
	"context"
	"fmt"
)

// Engine is the external execution engine. Every entry point returns the engine's serialized JSON response.
type Engine interface {
	ResolveIdentifier(ctx context.Context, url string) (string, error)
	FetchMetadata(ctx context.Context, url string) (string, error)
	Search(ctx context.Context, query string, limit int) (string, error)
	CheckAvailability(ctx context.Context, id, isrc string) (string, error)
	DownloadItem(ctx context.Context, request string) (string, error)
	DownloadWithFallback(ctx context.Context, request string) (string, error)
	GetProgress(ctx context.Context) (string, error)
	SetOutputDirectory(ctx context.Context, path string) error
	CheckDuplicate(ctx context.Context, outputDir, isrc string) (string, error)
	BuildFilename(ctx context.Context, template, metadata string) (string, error)
	SanitizeFilename(ctx context.Context, filename string) (string, error)
	FetchLyrics(ctx context.Context, id, trackName, artistName string) (string, error)
	GetLyricsLRC(ctx context.Context, id, trackName, artistName string) (string, error)
	EmbedLyrics(ctx context.Context, filePath, lyrics string) (string, error)
}

// Invoker calls the engine with decoded arguments.
type Invoker func(ctx context.Context, e Engine, a Args) (any, error)

// Operation is one registered entry of the catalogue.
type Operation struct {
	Name    string    `json:"name"`
	Summary string    `json:"summary"`
	Shape   Shape     `json:"shape"`
	Args    []ArgSpec `json:"args"`
	Invoke  Invoker   `json:"-"`
}

// Operation names.
const (
	OpResolveIdentifier    = "resolveIdentifier"
	OpFetchMetadata        = "fetchMetadata"
	OpSearch               = "search"
	OpCheckAvailability    = "checkAvailability"
	OpDownloadItem         = "downloadItem"
	OpDownloadWithFallback = "downloadWithFallback"
	OpGetProgress          = "getProgress"
	OpSetOutputDirectory   = "setOutputDirectory"
	OpCheckDuplicate       = "checkDuplicate"
	OpBuildFilename        = "buildFilename"
	OpSanitizeFilename     = "sanitizeFilename"
	OpFetchLyrics          = "fetchLyrics"
	OpGetLyricsLRC         = "getLyricsLRC"
	OpEmbedLyrics          = "embedLyrics"
)

const defaultSearchLimit = 10

func str(name string) ArgSpec  { return ArgSpec{Name: name, Kind: KindString} }
func blob(name string) ArgSpec { return ArgSpec{Name: name, Kind: KindBlob} }

// passthrough adapts a string-returning entry point so its value reaches the caller unchanged.
func passthrough(s string, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

func lyricsArgs() []ArgSpec {
	return []ArgSpec{str("id"), str("trackName"), str("artistName")}
}

// Catalogue returns the engine operations in listing order.
func Catalogue() []Operation {
	return []Operation{
		{
			Name: OpResolveIdentifier, Summary: "Parse a share URL into a typed identifier",
			Shape: ShapeArgs, Args: []ArgSpec{str("url")},
			Invoke: func(ctx context.Context, e Engine, a Args) (any, error) {
				return passthrough(e.ResolveIdentifier(ctx, a.String("url")))
			},
		},
		{
			Name: OpFetchMetadata, Summary: "Fetch track, album or playlist metadata",
			Shape: ShapeArgs, Args: []ArgSpec{str("url")},
			Invoke: func(ctx context.Context, e Engine, a Args) (any, error) {
				return passthrough(e.FetchMetadata(ctx, a.String("url")))
			},
		},
		{
			Name: OpSearch, Summary: "Search the catalogue",
			Shape: ShapeArgs, Args: []ArgSpec{str("query"), {Name: "limit", Kind: KindInt, Default: defaultSearchLimit}},
			Invoke: func(ctx context.Context, e Engine, a Args) (any, error) {
				return passthrough(e.Search(ctx, a.String("query"), a.Int("limit")))
			},
		},
		{
			Name: OpCheckAvailability, Summary: "Check whether an item can be downloaded",
			Shape: ShapeArgs, Args: []ArgSpec{str("id"), str("isrc")},
			Invoke: func(ctx context.Context, e Engine, a Args) (any, error) {
				return passthrough(e.CheckAvailability(ctx, a.String("id"), a.String("isrc")))
			},
		},
		{
			Name: OpDownloadItem, Summary: "Download one item from its primary source",
			Shape: ShapeBlob, Args: []ArgSpec{blob("requestBlob")},
			Invoke: func(ctx context.Context, e Engine, a Args) (any, error) {
				return passthrough(e.DownloadItem(ctx, a.String("requestBlob")))
			},
		},
		{
			Name: OpDownloadWithFallback, Summary: "Download one item, trying alternate sources",
			Shape: ShapeBlob, Args: []ArgSpec{blob("requestBlob")},
			Invoke: func(ctx context.Context, e Engine, a Args) (any, error) {
				return passthrough(e.DownloadWithFallback(ctx, a.String("requestBlob")))
			},
		},
		{
			Name: OpGetProgress, Summary: "Report the engine's current transfer progress",
			Shape: ShapeNone,
			Invoke: func(ctx context.Context, e Engine, _ Args) (any, error) {
				return passthrough(e.GetProgress(ctx))
			},
		},
		{
			Name: OpSetOutputDirectory, Summary: "Set the directory downloads are written to",
			Shape: ShapeArgs, Args: []ArgSpec{str("path")},
			Invoke: func(ctx context.Context, e Engine, a Args) (any, error) {
				return nil, e.SetOutputDirectory(ctx, a.String("path"))
			},
		},
		{
			Name: OpCheckDuplicate, Summary: "Look for an existing file with the same ISRC",
			Shape: ShapeArgs, Args: []ArgSpec{str("outputDir"), str("isrc")},
			Invoke: func(ctx context.Context, e Engine, a Args) (any, error) {
				return passthrough(e.CheckDuplicate(ctx, a.String("outputDir"), a.String("isrc")))
			},
		},
		{
			Name: OpBuildFilename, Summary: "Expand a filename template with metadata",
			Shape: ShapeArgs, Args: []ArgSpec{str("template"), blob("metadataBlob")},
			Invoke: func(ctx context.Context, e Engine, a Args) (any, error) {
				return passthrough(e.BuildFilename(ctx, a.String("template"), a.String("metadataBlob")))
			},
		},
		{
			Name: OpSanitizeFilename, Summary: "Strip characters that are invalid in file names",
			Shape: ShapeArgs, Args: []ArgSpec{str("filename")},
			Invoke: func(ctx context.Context, e Engine, a Args) (any, error) {
				return passthrough(e.SanitizeFilename(ctx, a.String("filename")))
			},
		},
		{
			Name: OpFetchLyrics, Summary: "Fetch lyrics as structured lines",
			Shape: ShapeArgs, Args: lyricsArgs(),
			Invoke: func(ctx context.Context, e Engine, a Args) (any, error) {
				return passthrough(e.FetchLyrics(ctx, a.String("id"), a.String("trackName"), a.String("artistName")))
			},
		},
		{
			Name: OpGetLyricsLRC, Summary: "Fetch lyrics in LRC format",
			Shape: ShapeArgs, Args: lyricsArgs(),
			Invoke: func(ctx context.Context, e Engine, a Args) (any, error) {
				return passthrough(e.GetLyricsLRC(ctx, a.String("id"), a.String("trackName"), a.String("artistName")))
			},
		},
		{
			Name: OpEmbedLyrics, Summary: "Write lyrics into an audio file's tags",
			Shape: ShapeArgs, Args: []ArgSpec{str("filePath"), str("lyrics")},
			Invoke: func(ctx context.Context, e Engine, a Args) (any, error) {
				return passthrough(e.EmbedLyrics(ctx, a.String("filePath"), a.String("lyrics")))
			},
		},
	}
}

// Registry maps operation names to operations. Lookups are exact and case-sensitive.
type Registry struct {
	ops   map[string]Operation
	order []string
}

// NewRegistry builds a registry. It panics on a duplicate or unnamed operation, or one without an Invoker.
func NewRegistry(ops ...Operation) *Registry {
	r := &Registry{ops: make(map[string]Operation, len(ops))}
	for _, op := range ops {
		if op.Name == "" || op.Invoke == nil {
			panic(fmt.Sprintf("bridge: incomplete operation %q", op.Name))
		}
		if _, dup := r.ops[op.Name]; dup {
			panic(fmt.Sprintf("bridge: duplicate operation %q", op.Name))
		}
		if op.Shape == ShapeBlob && (len(op.Args) != 1 || op.Args[0].Kind != KindBlob) {
			panic(fmt.Sprintf("bridge: blob operation %q must declare exactly one blob argument", op.Name))
		}
		r.ops[op.Name] = op
		r.order = append(r.order, op.Name)
	}
	return r
}

// Lookup returns the operation registered under name.
func (r *Registry) Lookup(name string) (Operation, bool) {
	op, ok := r.ops[name]
	return op, ok
}

// Operations lists the registered operations in registration order.
func (r *Registry) Operations() []Operation {
	ops := make([]Operation, 0, len(r.order))
	for _, name := range r.order {
		ops = append(ops, r.ops[name])
	}
	return ops
}
