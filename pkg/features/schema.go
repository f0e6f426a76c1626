// Package features turns raw entity records from the graph store into a fixed-schema numeric table.
package features

// Default feature names, as produced by the access-graph export.
const (
	TotalAccessCount      = "total_access_count"
	UniqueTargetsAccessed = "unique_targets_accessed"
	TargetDiversity       = "target_diversity"
	AccessMethodDiversity = "access_method_diversity"
	SensitiveDataReach    = "sensitive_data_reachable"
	RolesAssumed          = "roles_assumed"
	PrivilegeLevel        = "privilege_level"
)

// UnknownCategory labels rows whose record carries no category attribute.
const UnknownCategory = "unknown"

// Record is one row returned by the external graph query, keyed by attribute name.
// Values may be numbers, numeric strings, booleans or nil.
type Record map[string]any

// Schema fixes which attributes identify, group and describe an entity.
type Schema struct {
	// EntityKey names the attribute holding the unique entity id.
	EntityKey string
	// CategoryKey names the coarse role attribute used for peer grouping.
	CategoryKey string
	// Features lists the numeric attributes in model-input order.
	Features []string
	// RankFeature, when present in Features and absent from a record,
	// is derived from the record's category through CategoryRanks.
	RankFeature   string
	CategoryRanks map[string]float64
	DefaultRank   float64
}

// DefaultSchema returns the user-principal schema of the access graph.
func DefaultSchema() Schema {
	return Schema{
		EntityKey:   "user_name",
		CategoryKey: "access_level",
		Features: []string{
			TotalAccessCount,
			UniqueTargetsAccessed,
			TargetDiversity,
			AccessMethodDiversity,
			SensitiveDataReach,
			RolesAssumed,
			PrivilegeLevel,
		},
		RankFeature: PrivilegeLevel,
		CategoryRanks: map[string]float64{
			"administrator": 5,
			"developer":     3,
		},
		DefaultRank: 1,
	}
}

// Roles maps the semantic columns used by explanations and cluster profiling
// onto feature names. An empty role, or one missing from the table, is skipped.
type Roles struct {
	Activity  string `mapstructure:"activity" json:"activity" yaml:"activity"`
	Sensitive string `mapstructure:"sensitive" json:"sensitive" yaml:"sensitive"`
	Diversity string `mapstructure:"diversity" json:"diversity" yaml:"diversity"`
}

// DefaultRoles returns the roles of the default schema.
func DefaultRoles() Roles {
	return Roles{
		Activity:  TotalAccessCount,
		Sensitive: SensitiveDataReach,
		Diversity: TargetDiversity,
	}
}
