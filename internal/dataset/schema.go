package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/eda-agent/backend/pkg/utils"
)

// ColumnType is the semantic type inferred for a CSV column.
type ColumnType string

const (
	TypeNumeric     ColumnType = "numeric"
	TypeCategorical ColumnType = "categorical"
	TypeDatetime    ColumnType = "datetime"
)

type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Schema describes the columns of a dataset as inferred from the header row
// and a sample of the first batch.
type Schema struct {
	Columns []Column `json:"columns"`
	Hash    string   `json:"hash"`
}

func (s *Schema) Index(name string) (int, bool) {
	for i, c := range s.Columns {
		if c.Name == name {
			return i, true
		}
	}
	return 0, false
}

func (s *Schema) Column(name string) (Column, bool) {
	if i, ok := s.Index(name); ok {
		return s.Columns[i], true
	}
	return Column{}, false
}

// NumericColumns returns column names with numeric type, in schema order.
func (s *Schema) NumericColumns() []string {
	var names []string
	for _, c := range s.Columns {
		if c.Type == TypeNumeric {
			names = append(names, c.Name)
		}
	}
	return names
}

func buildSchema(headers []string, sample [][]string) *Schema {
	cols := make([]Column, len(headers))
	for i, name := range headers {
		values := make([]string, 0, len(sample))
		for _, row := range sample {
			if i < len(row) {
				values = append(values, row[i])
			}
		}
		cols[i] = Column{Name: name, Type: inferColumnType(values)}
	}

	var sb strings.Builder
	for _, c := range cols {
		fmt.Fprintf(&sb, "%s:%s;", c.Name, c.Type)
	}

	return &Schema{Columns: cols, Hash: utils.HashString(sb.String())}
}

// inferColumnType votes over non-empty sample values: at least 80% parseable
// as one kind wins, otherwise the column is categorical.
func inferColumnType(values []string) ColumnType {
	nonEmpty := 0
	numeric := 0
	dates := 0

	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		nonEmpty++
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			numeric++
			continue
		}
		if _, ok := ParseDatetime(v); ok {
			dates++
		}
	}

	if nonEmpty == 0 {
		return TypeCategorical
	}
	if float64(numeric)/float64(nonEmpty) >= 0.8 {
		return TypeNumeric
	}
	if float64(dates)/float64(nonEmpty) >= 0.8 {
		return TypeDatetime
	}
	return TypeCategorical
}

var datetimeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05.999999",
	"02/01/2006",
	"02.01.2006",
}

// ParseDatetime tries the supported layouts in order.
func ParseDatetime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// analyzeHeaders decides whether the first row is a header and returns the
// final column names. Rows where fewer than half the fields look like header
// text are treated as data and get generated names.
func analyzeHeaders(firstRow []string) (headers []string, firstRowIsData bool) {
	headerLike := 0
	for _, field := range firstRow {
		if isLikelyHeader(field) {
			headerLike++
		}
	}

	headers = make([]string, len(firstRow))
	if float64(headerLike)/float64(len(firstRow)) >= 0.5 {
		for i, h := range firstRow {
			h = strings.TrimSpace(h)
			if h == "" || !isLikelyHeader(h) {
				headers[i] = generateColumnName(i)
			} else {
				headers[i] = h
			}
		}
	} else {
		firstRowIsData = true
		for i := range firstRow {
			headers[i] = generateColumnName(i)
		}
	}

	return dedupeHeaders(headers), firstRowIsData
}

func isLikelyHeader(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	if _, err := strconv.ParseFloat(text, 64); err == nil {
		return false
	}
	if _, ok := ParseDatetime(text); ok {
		return false
	}

	letters := 0
	total := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if total == 0 {
		return false
	}

	return letters > 0 && float64(letters)/float64(total) >= 0.3
}

func generateColumnName(index int) string {
	return fmt.Sprintf("column_%d", index+1)
}

func dedupeHeaders(headers []string) []string {
	seen := make(map[string]int)
	result := make([]string, len(headers))

	for i, header := range headers {
		original := header
		counter := 1
		for {
			if _, exists := seen[header]; exists {
				header = fmt.Sprintf("%s_%d", original, counter)
				counter++
			} else {
				seen[header] = 1
				break
			}
		}
		result[i] = header
	}

	return result
}
