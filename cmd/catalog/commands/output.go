package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/types"
)

// Output formats accepted by --output
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// ValidateOutputFormat rejects unknown --output values
func ValidateOutputFormat(format string) error {
	switch format {
	case FormatTable, FormatJSON, FormatYAML:
		return nil
	}
	return errors.Newf("unsupported output format %q (supported: table, json, yaml)", format)
}

// printStructured writes v as JSON or YAML when one was requested.
// It reports false when the caller should render a table instead.
func printStructured(v interface{}) (bool, error) {
	switch OutputFormat {
	case FormatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return true, errors.Wrap(err, "failed to marshal JSON")
		}
		fmt.Println(string(data))
		return true, nil
	case FormatYAML:
		data, err := toYAML(v)
		if err != nil {
			return true, err
		}
		fmt.Print(string(data))
		return true, nil
	}
	return false, nil
}

// toYAML goes through JSON so keys match the json tags
func toYAML(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal YAML")
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, errors.Wrap(err, "failed to marshal YAML")
	}
	data, err := yaml.Marshal(generic)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal YAML")
	}
	return data, nil
}

func renderTable(header []string, rows [][]string) error {
	if len(rows) == 0 {
		pterm.Info.Println("No results")
		return nil
	}
	data := pterm.TableData{header}
	data = append(data, rows...)
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// renderKeyValues prints label/value pairs as a two-column table
func renderKeyValues(pairs [][2]string) error {
	data := make(pterm.TableData, 0, len(pairs))
	for _, p := range pairs {
		data = append(data, []string{p[0], p[1]})
	}
	return pterm.DefaultTable.WithData(data).Render()
}

func executionRows(execs []*types.Execution) [][]string {
	rows := make([][]string, 0, len(execs))
	for _, e := range execs {
		rows = append(rows, []string{
			e.ID,
			formatTime(e.Timestamp),
			e.Algorithm,
			string(e.Status),
			strconv.FormatFloat(e.Performance.ExecutionTimeSeconds, 'f', 2, 64),
			formatCost(e),
			strconv.FormatInt(e.ResultCount, 10),
			types.Deref(e.EpochID),
		})
	}
	return rows
}

var executionHeader = []string{"ID", "TIMESTAMP", "ALGORITHM", "STATUS", "TIME (s)", "COST", "RESULTS", "EPOCH"}

func printExecutions(execs []*types.Execution) error {
	if done, err := printStructured(execs); done {
		return err
	}
	return renderTable(executionHeader, executionRows(execs))
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

func formatCost(e *types.Execution) string {
	if cost, ok := e.Cost(); ok {
		return fmt.Sprintf("$%.4f", cost)
	}
	return "-"
}

func formatCounts(m map[string]int) string {
	out := ""
	for _, k := range sortedKeys(m) {
		if out != "" {
			out += ", "
		}
		out += fmt.Sprintf("%s=%d", k, m[k])
	}
	if out == "" {
		return "-"
	}
	return out
}
