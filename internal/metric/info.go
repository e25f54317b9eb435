package metric

import (
	"fmt"
	"strings"

	"github.com/sells-group/hexplorer/internal/colorscale"
	"github.com/sells-group/hexplorer/internal/dataset"
)

// Panel titles shown by the browser client.
const (
	PopupTitle = "Hexagon Data"
	InfoTitle  = "Selected Hexagon"
)

// Line is one formatted metric value of a cell.
type Line struct {
	Key     string               `json:"key"`
	Name    string               `json:"name"`
	Value   string               `json:"value"`
	Unit    string               `json:"unit,omitempty"`
	Color   colorscale.ColorSpec `json:"color"`
	Present bool                 `json:"present"`
}

// Panel is the text of a popup or info panel for one cell.
type Panel struct {
	Title string `json:"title"`
	ID    string `json:"id"`
	Lines []Line `json:"lines"`
}

// String renders the panel as plain text, one "Name: value" per line.
func (p Panel) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s", p.Title, p.ID)
	for _, l := range p.Lines {
		fmt.Fprintf(&b, "\n%s: %s", l.Name, l.Value)
	}
	return b.String()
}

func (d Descriptor) line(rec dataset.Record) Line {
	v, ok := rec.Value(d.Key)
	return Line{
		Key:     d.Key,
		Name:    d.Name,
		Value:   d.FormatValue(v, ok),
		Unit:    d.Unit,
		Color:   d.Color(v, ok),
		Present: ok,
	}
}

// Describe formats every registered metric of rec for the info panel.
func (r *Registry) Describe(rec dataset.Record) Panel {
	p := Panel{Title: InfoTitle, ID: rec.ID, Lines: make([]Line, 0, len(r.order))}
	for _, k := range r.order {
		p.Lines = append(p.Lines, r.byKey[k].line(rec))
	}
	return p
}

// Popup formats the selected metric of rec for the hover/click popup.
func (r *Registry) Popup(rec dataset.Record, key string) (Panel, error) {
	d, ok := r.byKey[key]
	if !ok {
		_, err := r.Lookup(key)
		return Panel{}, err
	}
	return Panel{Title: PopupTitle, ID: rec.ID, Lines: []Line{d.line(rec)}}, nil
}
