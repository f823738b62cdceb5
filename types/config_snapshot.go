package types

import "time"

// EffectiveConfigSnapshot represents the effective runtime configuration grouped by domain.
type EffectiveConfigSnapshot struct {
	Runner    RunnerConfigSnapshot    `json:"runner"`
	Extension ExtensionConfigSnapshot `json:"extension"`
	Paths     PathsConfigSnapshot     `json:"paths"`

	RunID string `json:"runId,omitempty"`
}

type RunnerConfigSnapshot struct {
	GoBinary string        `json:"goBinary"`
	Timeout  time.Duration `json:"timeout"`
	Patterns []string      `json:"patterns"`
}

type ExtensionConfigSnapshot struct {
	Enabled              bool   `json:"enabled"`
	Title                string `json:"title,omitempty"`
	JSONReportFile       string `json:"jsonReportFile,omitempty"`
	Metadata             bool   `json:"metadata"`
	MetaDelimiter        string `json:"metaDelimiter"`
	MetaAssignmentSymbol string `json:"metaAssignmentSymbol"`
	ChineseNodeID        bool   `json:"chineseNodeId"`
	NodeIDDelimiter      string `json:"nodeIdDelimiter"`
	Atomic               bool   `json:"atomic"`
}

type PathsConfigSnapshot struct {
	TestDir    string `json:"testDir"`
	ConfigFile string `json:"configFile,omitempty"`
	RawJSONOut string `json:"rawJsonOut,omitempty"`
}
