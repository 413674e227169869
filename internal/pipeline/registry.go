package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"unicode/utf8"

	"tabflow/internal/config"
	"tabflow/internal/sink"
	"tabflow/internal/source"
	"tabflow/internal/transform"
)

// SourceFactory builds a source from its spec
type SourceFactory func(ctx context.Context, spec StageSpec) (source.Source, error)

// TransformFactory builds a transform from its spec. Factories may load
// auxiliary tables (join right side, aggregation reference).
type TransformFactory func(ctx context.Context, spec StageSpec) (transform.Transformer, error)

// SinkFactory builds a sink from its spec
type SinkFactory func(ctx context.Context, spec StageSpec) (sink.Sink, error)

// Registry maps stage types to factories
type Registry struct {
	mu         sync.RWMutex
	sources    map[string]SourceFactory
	transforms map[string]TransformFactory
	sinks      map[string]SinkFactory

	paths  *config.Paths
	sheets source.SheetsOptions
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithSheetsOptions sets the defaults used by sheets sources
func WithSheetsOptions(opts source.SheetsOptions) RegistryOption {
	return func(r *Registry) {
		r.sheets = opts
	}
}

// NewRegistry creates a registry holding every built-in stage type. Relative
// paths in specs resolve against paths, which may be nil.
func NewRegistry(paths *config.Paths, opts ...RegistryOption) *Registry {
	r := &Registry{
		sources:    make(map[string]SourceFactory),
		transforms: make(map[string]TransformFactory),
		sinks:      make(map[string]SinkFactory),
		paths:      paths,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.registerBuiltins()
	return r
}

// RegisterSource adds a source type
func (r *Registry) RegisterSource(typ string, f SourceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sources[typ]; exists {
		return fmt.Errorf("source type %q already registered", typ)
	}
	r.sources[typ] = f
	return nil
}

// RegisterTransform adds a transform type
func (r *Registry) RegisterTransform(typ string, f TransformFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transforms[typ]; exists {
		return fmt.Errorf("transform type %q already registered", typ)
	}
	r.transforms[typ] = f
	return nil
}

// RegisterSink adds a sink type
func (r *Registry) RegisterSink(typ string, f SinkFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sinks[typ]; exists {
		return fmt.Errorf("sink type %q already registered", typ)
	}
	r.sinks[typ] = f
	return nil
}

// SourceTypes lists the registered source types
func (r *Registry) SourceTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.sources)
}

// TransformTypes lists the registered transform types
func (r *Registry) TransformTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.transforms)
}

// SinkTypes lists the registered sink types
func (r *Registry) SinkTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.sinks)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Build validates a definition and creates its pipeline. Auxiliary tables
// are loaded here, so build errors may also be table errors.
func (r *Registry) Build(ctx context.Context, def *Definition, opts ...Option) (*Pipeline, error) {
	if def == nil {
		return nil, NewValidationError("", "definition is required")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	src, err := r.buildSource(ctx, "source", def.Source)
	if err != nil {
		return nil, err
	}

	transforms := make([]transform.Transformer, 0, len(def.Transforms))
	for i, spec := range def.Transforms {
		t, err := r.buildTransform(ctx, fmt.Sprintf("transforms[%d]", i), spec)
		if err != nil {
			return nil, err
		}
		transforms = append(transforms, t)
	}

	snk, err := r.buildSink(ctx, def.Sink)
	if err != nil {
		return nil, err
	}

	return New(def.Name, src, transforms, snk, opts...)
}

func (r *Registry) buildSource(ctx context.Context, field string, spec StageSpec) (source.Source, error) {
	r.mu.RLock()
	f, ok := r.sources[spec.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, NewValidationError(field+".type", fmt.Sprintf("unknown source type %q", spec.Type))
	}
	src, err := f(ctx, spec)
	if err != nil {
		return nil, buildError(field, err)
	}
	return src, nil
}

func (r *Registry) buildTransform(ctx context.Context, field string, spec StageSpec) (transform.Transformer, error) {
	r.mu.RLock()
	f, ok := r.transforms[spec.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, NewValidationError(field+".type", fmt.Sprintf("unknown transform type %q", spec.Type))
	}
	t, err := f(ctx, spec)
	if err != nil {
		return nil, buildError(field, err)
	}
	return t, nil
}

func (r *Registry) buildSink(ctx context.Context, spec StageSpec) (sink.Sink, error) {
	r.mu.RLock()
	f, ok := r.sinks[spec.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, NewValidationError("sink.type", fmt.Sprintf("unknown sink type %q", spec.Type))
	}
	s, err := f(ctx, spec)
	if err != nil {
		return nil, buildError("sink", err)
	}
	return s, nil
}

// buildError keeps pipeline errors and wraps anything else as a
// validation error of the stage at field, preserving the cause
func buildError(field string, err error) error {
	if _, ok := err.(*Error); ok {
		return err
	}
	verr := NewValidationError(field, fmt.Sprintf("invalid %s", field))
	verr.Cause = err
	return verr
}

// separator decodes a one-character separator, def when empty
func separator(s string, def rune) (rune, error) {
	if s == "" {
		return def, nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) {
		return 0, fmt.Errorf("separator must be a single character, got %q", s)
	}
	return r, nil
}

func requirePath(spec StageSpec) error {
	if spec.Path == "" {
		return fmt.Errorf("%s: path is required", spec.Type)
	}
	return nil
}

func (r *Registry) registerBuiltins() {
	r.sources["csv"] = func(_ context.Context, spec StageSpec) (source.Source, error) {
		return r.delimitedSource(spec, source.NewCSV)
	}
	r.sources["csv.gz"] = func(_ context.Context, spec StageSpec) (source.Source, error) {
		return r.delimitedSource(spec, source.NewCSVGzip)
	}
	r.sources["json.gz"] = func(_ context.Context, spec StageSpec) (source.Source, error) {
		if err := requirePath(spec); err != nil {
			return nil, err
		}
		return source.NewJSONGzip(r.paths, spec.Path), nil
	}
	r.sources["xlsx"] = func(_ context.Context, spec StageSpec) (source.Source, error) {
		if err := requirePath(spec); err != nil {
			return nil, err
		}
		return source.NewXLSX(r.paths, spec.Path, spec.Sheet), nil
	}
	r.sources["parquet"] = func(_ context.Context, spec StageSpec) (source.Source, error) {
		if err := requirePath(spec); err != nil {
			return nil, err
		}
		return source.NewParquet(r.paths, spec.Path), nil
	}
	r.sources["sheets"] = func(_ context.Context, spec StageSpec) (source.Source, error) {
		opts := r.sheets
		if spec.CredentialsFile != "" {
			opts.CredentialsFile = r.paths.Input(spec.CredentialsFile)
		}
		if spec.APIKey != "" {
			opts.APIKey = spec.APIKey
		}
		return source.NewSheets(spec.SpreadsheetID, spec.Range, opts)
	}

	r.transforms["project"] = func(_ context.Context, spec StageSpec) (transform.Transformer, error) {
		return transform.NewProject(spec.Columns...), nil
	}
	r.transforms["filter"] = func(_ context.Context, spec StageSpec) (transform.Transformer, error) {
		preds := make([]transform.Predicate, len(spec.Predicates))
		for i, p := range spec.Predicates {
			typ, err := transform.ParseValueType(p.Type)
			if err != nil {
				return nil, err
			}
			preds[i] = transform.Predicate{
				Column:   p.Column,
				Operator: transform.Operator(p.Operator),
				Literal:  p.Value,
				Type:     typ,
			}
		}
		return transform.NewFilter(preds...)
	}
	r.transforms["drop_missing"] = func(_ context.Context, spec StageSpec) (transform.Transformer, error) {
		if len(spec.Sentinels) == 0 {
			return nil, fmt.Errorf("drop_missing: at least one sentinel is required")
		}
		values, err := sentinelValues(spec.Sentinels)
		if err != nil {
			return nil, err
		}
		return transform.NewDropMissing(values...), nil
	}
	r.transforms["join"] = func(ctx context.Context, spec StageSpec) (transform.Transformer, error) {
		if spec.Right == nil {
			return nil, fmt.Errorf("join: right source is required")
		}
		mode, err := transform.ParseJoinMode(spec.Mode)
		if err != nil {
			return nil, err
		}
		src, err := r.buildSource(ctx, "right", *spec.Right)
		if err != nil {
			return nil, err
		}
		right, err := src.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("join: failed to load right table: %w", err)
		}
		return transform.NewJoin(right, spec.LeftPivots, spec.RightPivots, mode)
	}
	r.transforms["spatial_aggregate"] = func(ctx context.Context, spec StageSpec) (transform.Transformer, error) {
		if spec.Reference == "" {
			return nil, fmt.Errorf("spatial_aggregate: reference is required")
		}
		reducer, err := r.reducer(spec)
		if err != nil {
			return nil, err
		}
		ref, err := source.NewCSV(r.paths, spec.Reference, ',').Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("spatial_aggregate: failed to load reference: %w", err)
		}
		return transform.NewSpatialAggregate(ref, transform.AggregateOptions{
			ReferencePivot: spec.ReferencePivot,
			Pivot:          spec.Pivot,
			Scale:          spec.Scale,
			GroupBy:        spec.GroupBy,
			Reducer:        reducer,
		})
	}
	r.transforms["rolling_mean"] = func(_ context.Context, spec StageSpec) (transform.Transformer, error) {
		return transform.NewRollingMean(spec.Column, spec.Window, spec.OrderBy)
	}
	r.transforms["center"] = func(_ context.Context, spec StageSpec) (transform.Transformer, error) {
		return transform.NewCenter(spec.Columns...), nil
	}
	r.transforms["normalize"] = func(_ context.Context, spec StageSpec) (transform.Transformer, error) {
		return transform.NewNormalize(spec.Columns...), nil
	}
	r.transforms["date_window"] = func(_ context.Context, spec StageSpec) (transform.Transformer, error) {
		return transform.NewDateWindow(spec.Column, spec.Start, spec.End)
	}
	r.transforms["format_date"] = func(_ context.Context, spec StageSpec) (transform.Transformer, error) {
		formats := make([]transform.DateFormat, len(spec.Formats))
		for i, f := range spec.Formats {
			formats[i] = transform.DateFormat{Column: f.Column, Format: f.Format}
		}
		return transform.NewFormatDate(formats...)
	}

	r.sinks["csv"] = func(_ context.Context, spec StageSpec) (sink.Sink, error) {
		return r.delimitedSink(spec, sink.NewCSV)
	}
	r.sinks["csv.gz"] = func(_ context.Context, spec StageSpec) (sink.Sink, error) {
		return r.delimitedSink(spec, sink.NewCSVGzip)
	}
	r.sinks["xlsx"] = func(_ context.Context, spec StageSpec) (sink.Sink, error) {
		if err := requirePath(spec); err != nil {
			return nil, err
		}
		return sink.NewXLSX(r.paths, spec.Path, spec.Sheet), nil
	}
	r.sinks["parquet"] = func(_ context.Context, spec StageSpec) (sink.Sink, error) {
		if err := requirePath(spec); err != nil {
			return nil, err
		}
		return sink.NewParquet(r.paths, spec.Path), nil
	}
}

func (r *Registry) delimitedSource(spec StageSpec, newCSV func(*config.Paths, string, rune) *source.CSV) (source.Source, error) {
	if err := requirePath(spec); err != nil {
		return nil, err
	}
	sep, err := separator(spec.Separator, source.DefaultSeparator)
	if err != nil {
		return nil, err
	}
	return newCSV(r.paths, spec.Path, sep), nil
}

func (r *Registry) delimitedSink(spec StageSpec, newCSV func(*config.Paths, string, rune, bool) *sink.CSV) (sink.Sink, error) {
	if err := requirePath(spec); err != nil {
		return nil, err
	}
	sep, err := separator(spec.Separator, sink.DefaultSeparator)
	if err != nil {
		return nil, err
	}
	return newCSV(r.paths, spec.Path, sep, spec.BOM), nil
}

// reducer selects a scripted reducer when a script is given, otherwise a
// built-in one by name
func (r *Registry) reducer(spec StageSpec) (transform.Reducer, error) {
	if spec.Script != "" {
		return transform.CompileReducer(spec.Script)
	}
	return transform.ParseReducer(spec.Reducer)
}
