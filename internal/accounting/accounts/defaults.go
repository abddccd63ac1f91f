package accounts

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultChartYAML []byte

// ChartEntry is one node of a seedable chart of accounts.
type ChartEntry struct {
	Code   string      `yaml:"code"`
	Name   string      `yaml:"name"`
	Type   AccountType `yaml:"type"`
	Parent string      `yaml:"parent,omitempty"`
}

type chartFile struct {
	Accounts []ChartEntry `yaml:"accounts"`
}

// ParseChart decodes a YAML chart and checks that parents precede their children.
func ParseChart(raw []byte) ([]ChartEntry, error) {
	var file chartFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("accounts: parse chart: %w", err)
	}
	seen := make(map[string]bool, len(file.Accounts))
	for _, entry := range file.Accounts {
		if entry.Code == "" || entry.Name == "" {
			return nil, fmt.Errorf("accounts: chart entry missing code or name")
		}
		if !entry.Type.Valid() {
			return nil, fmt.Errorf("accounts: chart entry %s has invalid type %q", entry.Code, entry.Type)
		}
		if entry.Parent != "" && !seen[entry.Parent] {
			return nil, fmt.Errorf("accounts: chart entry %s references unknown parent %s", entry.Code, entry.Parent)
		}
		seen[entry.Code] = true
	}
	return file.Accounts, nil
}

// DefaultChart returns the embedded default chart of accounts.
func DefaultChart() []ChartEntry {
	chart, err := ParseChart(defaultChartYAML)
	if err != nil {
		panic(err)
	}
	return chart
}

// legacyCode maps short codes to the padded form used by older charts ("1" -> "1000", "11" -> "1100").
func legacyCode(code string) string {
	switch len(code) {
	case 1:
		return code + "000"
	case 2:
		return code + "00"
	}
	return ""
}
