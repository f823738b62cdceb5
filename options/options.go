// Package options holds the [wetest] configuration section.
package options

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum-optimism/infra/wetest/types"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Section is the name of the configuration section.
const Section = "wetest"

// Recognized keys of the section.
const (
	KeyTitle                = "title"
	KeyJSONReportFile       = "json_report_file"
	KeyMetadata             = "metadata"
	KeyMetaDelimiter        = "meta_delimiter"
	KeyMetaAssignmentSymbol = "meta_assignment_symbol"
	KeyChineseNodeID        = "chinese_node_id"
	KeyNodeIDDelimiter      = "node_id_delimiter"
	KeyAtomic               = "atomic"
)

const (
	DefaultMetaDelimiter        = "@!"
	DefaultMetaAssignmentSymbol = ":"
	DefaultNodeIDDelimiter      = "@"

	// ReportAuto asks for a generated report file name.
	ReportAuto = "auto"
	// ReportNone disables the report.
	ReportNone = "none"
)

// ConfigFileNames are looked up in the test directory, in order, when no
// configuration file is given explicitly.
var ConfigFileNames = []string{"wetest.ini", "wetest.cfg", "wetest.yaml", "wetest.yml", "wetest.toml"}

var knownKeys = map[string]struct{}{
	KeyTitle:                {},
	KeyJSONReportFile:       {},
	KeyMetadata:             {},
	KeyMetaDelimiter:        {},
	KeyMetaAssignmentSymbol: {},
	KeyChineseNodeID:        {},
	KeyNodeIDDelimiter:      {},
	KeyAtomic:               {},
}

// Options is the resolved [wetest] section. It is built once per session and
// passed by value.
type Options struct {
	Title                string
	JSONReportFile       string
	Metadata             bool
	MetaDelimiter        string
	MetaAssignmentSymbol string
	ChineseNodeID        bool
	NodeIDDelimiter      string
	Atomic               bool

	// Source is the file the options were read from, empty for defaults.
	Source string
}

// Default returns the options used when no configuration file exists.
func Default() Options {
	return Options{
		MetaDelimiter:        DefaultMetaDelimiter,
		MetaAssignmentSymbol: DefaultMetaAssignmentSymbol,
		NodeIDDelimiter:      DefaultNodeIDDelimiter,
		Atomic:               true,
	}
}

// ParseBool reports whether s is one of true, yes, on or 1, ignoring case.
// Every other token is false.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true
	default:
		return false
	}
}

// FromSection resolves raw section values. Keys are matched case-insensitively;
// unknown keys are logged and ignored. Blank delimiters fall back to their
// defaults and a blank atomic value counts as unset.
func FromSection(values map[string]string, lgr log.Logger) Options {
	opts := Default()
	normalized := make(map[string]string, len(values))
	for k, v := range values {
		normalized[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}

	var unknown []string
	for k := range normalized {
		if _, ok := knownKeys[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 && lgr != nil {
		sort.Strings(unknown)
		lgr.Warn("Ignoring unknown configuration keys", "section", Section, "keys", unknown)
	}

	opts.Title = normalized[KeyTitle]
	opts.JSONReportFile = normalized[KeyJSONReportFile]
	opts.Metadata = ParseBool(normalized[KeyMetadata])
	opts.ChineseNodeID = ParseBool(normalized[KeyChineseNodeID])
	if v := normalized[KeyMetaDelimiter]; v != "" {
		opts.MetaDelimiter = v
	}
	if v := normalized[KeyMetaAssignmentSymbol]; v != "" {
		opts.MetaAssignmentSymbol = v
	}
	if v := normalized[KeyNodeIDDelimiter]; v != "" {
		opts.NodeIDDelimiter = v
	}
	if v := normalized[KeyAtomic]; v != "" {
		opts.Atomic = ParseBool(v)
	}
	return opts
}

// Load reads the [wetest] section of the file at path. The format is chosen
// by extension: .ini and .cfg are ini files, .yaml and .yml expect a
// top-level "wetest" mapping and .toml a [wetest] table. A missing section
// yields the defaults.
func Load(path string, lgr log.Logger) (Options, error) {
	var (
		values map[string]string
		err    error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".ini", ".cfg":
		values, err = loadINI(path)
	case ".yaml", ".yml":
		values, err = loadYAML(path)
	case ".toml":
		values, err = loadTOML(path)
	default:
		return Options{}, fmt.Errorf("unsupported configuration file extension %q", ext)
	}
	if err != nil {
		return Options{}, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}

	opts := FromSection(values, lgr)
	opts.Source = path
	return opts, nil
}

// Discover returns the first configuration file found in dir.
func Discover(dir string) (string, bool) {
	for _, name := range ConfigFileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// Resolve loads the explicit configuration file if one is given, otherwise
// the first discovered file in dir, otherwise the defaults.
func Resolve(explicit, dir string, lgr log.Logger) (Options, error) {
	path := explicit
	if path == "" {
		found, ok := Discover(dir)
		if !ok {
			if lgr != nil {
				lgr.Debug("No configuration file found, using defaults", "dir", dir)
			}
			return Default(), nil
		}
		path = found
	}
	if lgr != nil {
		lgr.Info("Loading configuration", "file", path)
	}
	return Load(path, lgr)
}

// ReportPath returns where the JSON report goes, or false when no report is
// requested. The auto value generates a timestamped name in the working
// directory.
func (o Options) ReportPath(now time.Time) (string, bool) {
	v := strings.TrimSpace(o.JSONReportFile)
	switch {
	case v == "", strings.EqualFold(v, ReportNone):
		return "", false
	case strings.EqualFold(v, ReportAuto):
		return fmt.Sprintf("report-%s.json", now.Format("20060102-150405")), true
	default:
		return v, true
	}
}

// ReportTitle returns the report title, nil when blank.
func (o Options) ReportTitle() *string {
	if strings.TrimSpace(o.Title) == "" {
		return nil
	}
	title := o.Title
	return &title
}

// Snapshot returns the options as recorded in the effective configuration.
func (o Options) Snapshot(enabled bool) types.ExtensionConfigSnapshot {
	return types.ExtensionConfigSnapshot{
		Enabled:              enabled,
		Title:                o.Title,
		JSONReportFile:       o.JSONReportFile,
		Metadata:             o.Metadata,
		MetaDelimiter:        o.MetaDelimiter,
		MetaAssignmentSymbol: o.MetaAssignmentSymbol,
		ChineseNodeID:        o.ChineseNodeID,
		NodeIDDelimiter:      o.NodeIDDelimiter,
		Atomic:               o.Atomic,
	}
}

func loadINI(path string) (map[string]string, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		Insensitive:         true,
		IgnoreInlineComment: true,
	}, path)
	if err != nil {
		return nil, err
	}
	section, err := cfg.GetSection(Section)
	if err != nil {
		return map[string]string{}, nil
	}
	return section.KeysHash(), nil
}

func loadYAML(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return stringify(doc[Section]), nil
}

func loadTOML(path string) (map[string]string, error) {
	var doc map[string]map[string]any
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, err
	}
	return stringify(doc[Section]), nil
}

func stringify(section map[string]any) map[string]string {
	out := make(map[string]string, len(section))
	for k, v := range section {
		if v == nil {
			out[k] = ""
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}
