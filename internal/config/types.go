// Package config defines munaudit's configuration and its loader.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
package config

// Default configuration values.
const (
	DefaultDataDir   = "data"
	DefaultRulesPath = "rules.csv"
	DefaultOutputDir = "reports"
	DefaultStatePath = ".munaudit/history.db"
)

// Demographics names the roster table and columns of the questionnaire
// export. Every field has a default matching the standard export; only
// non-standard exports need to set these.
type Demographics struct {
	Table            string `koanf:"table"`
	EntityIDColumn   string `koanf:"entity_id_column"`
	EntityNameColumn string `koanf:"entity_name_column"`
	DistrictColumn   string `koanf:"district_column"`
	PopulationColumn string `koanf:"population_column"`
	GradeColumn      string `koanf:"grade_column"`
}

// Config is the resolved application configuration.
type Config struct {
	// DataDir holds the exported questionnaire CSV tables.
	DataDir string `koanf:"data_dir"`
	// RulesPath is the rule catalog CSV.
	RulesPath string `koanf:"rules_path"`
	// OutputDir receives the findings reports.
	OutputDir string `koanf:"output_dir"`
	// StatePath is the run-history SQLite database.
	StatePath string `koanf:"state_path"`

	Demographics Demographics `koanf:"demographics"`

	Verbose bool   `koanf:"verbose"`
	Output  string `koanf:"output"` // report format: csv, json, or both
}
