package overlay

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/hexplorer/internal/metric"
)

// DefaultTitle heads the popup of an overlay without a title.
const DefaultTitle = "Gas Infrastructure"

// hiddenProps are ArcGIS bookkeeping fields.
var hiddenProps = map[string]bool{
	"OBJECTID": true,
	"Shape":    true,
	"GlobalID": true,
}

var titler = cases.Title(language.Und, cases.NoLower)

// Describe formats the properties of a clicked overlay feature. Empty,
// zero and false values are left out.
func Describe(o Overlay, props map[string]any) metric.Panel {
	p := metric.Panel{Title: o.Title, ID: o.Name}
	if p.Title == "" {
		p.Title = DefaultTitle
	}

	keys := make([]string, 0, len(props))
	for k, v := range props {
		if hiddenProps[k] || !truthy(v) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		p.Lines = append(p.Lines, metric.Line{
			Key:     k,
			Name:    titler.String(strings.ReplaceAll(k, "_", " ")),
			Value:   formatProp(props[k]),
			Present: true,
		})
	}
	return p
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	}
	return true
}

func formatProp(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v)
}
