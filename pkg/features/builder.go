package features

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hed1ad/accessguard/pkg/errorutil"
)

// Builder converts records into a Table under a fixed schema.
type Builder struct {
	schema Schema
}

// Option configures a Builder.
type Option func(*Builder)

// WithSchema replaces the default schema.
func WithSchema(s Schema) Option {
	return func(b *Builder) {
		b.schema = s
	}
}

// NewBuilder creates a Builder with the default schema unless overridden.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{schema: DefaultSchema()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Schema returns the builder's schema.
func (b *Builder) Schema() Schema { return b.schema }

// Build produces one FeatureRow per record, in input order.
// Absent or null attributes become zero. An empty input, a missing or duplicated
// entity id, or a non-numeric, negative or infinite feature value is a SchemaError.
func (b *Builder) Build(records []Record) (*Table, error) {
	if len(b.schema.Features) == 0 {
		return nil, errorutil.Schema("features", "schema declares no numeric features")
	}
	if len(records) == 0 {
		return nil, errorutil.Schema("records", "feature source returned zero rows")
	}

	seen := make(map[string]int, len(records))
	rows := make([]FeatureRow, 0, len(records))

	for i, rec := range records {
		id, err := entityID(rec, b.schema.EntityKey)
		if err != nil {
			return nil, errorutil.Schema(b.schema.EntityKey, "row %d: %v", i, err)
		}
		if prev, dup := seen[id]; dup {
			return nil, errorutil.Schema(b.schema.EntityKey, "rows %d and %d share entity id %q", prev, i, id)
		}
		seen[id] = i

		category := UnknownCategory
		if v, ok := rec[b.schema.CategoryKey]; ok && v != nil {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				category = s
			}
		}

		values := make([]float64, len(b.schema.Features))
		for j, name := range b.schema.Features {
			raw, present := rec[name]
			if (!present || raw == nil) && name == b.schema.RankFeature {
				values[j] = b.rankFor(category)
				continue
			}
			v, err := toFloat(raw)
			if err != nil {
				return nil, errorutil.Schema(name, "row %d (%s): %v", i, id, err)
			}
			if v < 0 {
				return nil, errorutil.Schema(name, "row %d (%s): negative value %g", i, id, v)
			}
			values[j] = v
		}

		rows = append(rows, FeatureRow{EntityID: id, Category: category, Values: values})
	}

	return NewTable(b.schema.Features, rows), nil
}

func (b *Builder) rankFor(category string) float64 {
	if r, ok := b.schema.CategoryRanks[category]; ok {
		return r
	}
	return b.schema.DefaultRank
}

func entityID(rec Record, key string) (string, error) {
	v, ok := rec[key]
	if !ok || v == nil {
		return "", fmt.Errorf("missing entity id attribute %q", key)
	}
	id := strings.TrimSpace(fmt.Sprint(v))
	if id == "" {
		return "", fmt.Errorf("empty entity id attribute %q", key)
	}
	return id, nil
}

// toFloat coerces a record attribute to a feature value. Nil, empty strings and NaN
// are treated as missing and impute to zero.
func toFloat(v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case bool:
		if x {
			f = 1
		}
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("non-numeric value %q", x.String())
		}
		f = parsed
	case []byte:
		return toFloat(string(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, nil
		}
		if b, err := strconv.ParseBool(s); err == nil && !isNumeric(s) {
			return toFloat(b)
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric value %q", s)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}

	if math.IsNaN(f) {
		return 0, nil
	}
	if math.IsInf(f, 0) {
		return 0, fmt.Errorf("infinite value")
	}
	return f, nil
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
