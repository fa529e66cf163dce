package azuresql

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// planSummary is what the adapter reads out of a SHOWPLAN_XML document
type planSummary struct {
	StatementType string
	SubtreeCost   float64
	EstimatedRows float64
	Tables        []string
}

// parseShowPlan walks the plan tokens once. Cost and rows are summed over
// every StmtSimple in the batch; the statement type is the first one seen.
func parseShowPlan(doc string) (planSummary, error) {
	var out planSummary
	seen := map[string]bool{}
	statements := 0

	dec := xml.NewDecoder(strings.NewReader(doc))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return planSummary{}, fmt.Errorf("parse showplan: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "StmtSimple":
			statements++
			for _, attr := range start.Attr {
				switch attr.Name.Local {
				case "StatementType":
					if out.StatementType == "" {
						out.StatementType = attr.Value
					}
				case "StatementSubTreeCost":
					out.SubtreeCost += parseFloat(attr.Value)
				case "StatementEstRows":
					out.EstimatedRows += parseFloat(attr.Value)
				}
			}
		case "Object":
			name := objectName(start.Attr)
			if name != "" && !seen[name] {
				seen[name] = true
				out.Tables = append(out.Tables, name)
			}
		}
	}
	if statements == 0 {
		return planSummary{}, errors.New("showplan has no statements")
	}
	sort.Strings(out.Tables)
	return out, nil
}

// objectName renders schema.table from a plan Object element. Worktables
// and objects without a table are skipped.
func objectName(attrs []xml.Attr) string {
	var schema, table string
	for _, a := range attrs {
		switch a.Name.Local {
		case "Schema":
			schema = strings.Trim(a.Value, "[]")
		case "Table":
			table = strings.Trim(a.Value, "[]")
		}
	}
	if table == "" || strings.HasPrefix(table, "Worktable") || strings.HasPrefix(table, "#") {
		return ""
	}
	if schema == "" {
		return table
	}
	return schema + "." + table
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
