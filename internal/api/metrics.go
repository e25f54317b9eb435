package api

import (
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/hexplorer/internal/colorscale"
	"github.com/sells-group/hexplorer/internal/dataset"
	"github.com/sells-group/hexplorer/internal/metric"
	"github.com/sells-group/hexplorer/internal/render"
)

type metricView struct {
	Key         string               `json:"key"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Unit        string               `json:"unit,omitempty"`
	Policy      colorscale.Policy    `json:"policy"`
	Precision   int                  `json:"precision"`
	Derived     bool                 `json:"derived"`
	Domain      dataset.Range        `json:"domain"`
	Sentinel    colorscale.ColorSpec `json:"sentinel"`
	Stops       []colorscale.Stop    `json:"stops,omitempty"`
}

func newMetricView(d metric.Descriptor, withStops bool) metricView {
	v := metricView{
		Key:         d.Key,
		Name:        d.Name,
		Description: d.Description,
		Unit:        d.Unit,
		Policy:      d.Policy,
		Precision:   d.Precision,
		Derived:     d.Derived(),
		Domain:      d.DefaultDomain,
		Sentinel:    d.Sentinel,
	}
	if withStops {
		v.Stops = d.Scale().Stops()
	}
	return v
}

type metricList struct {
	Default string       `json:"default"`
	Metrics []metricView `json:"metrics"`
}

type rangeView struct {
	Metric string  `json:"metric"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Step   float64 `json:"step"`
}

type colorView struct {
	Metric  string               `json:"metric"`
	Value   *float64             `json:"value"`
	Color   colorscale.ColorSpec `json:"color"`
	Label   string               `json:"label"`
	Present bool                 `json:"present"`
}

func (s *Server) handleListMetrics(w http.ResponseWriter, _ *http.Request) {
	all := s.deps.Registry.All()
	out := metricList{Default: s.deps.DefaultMetric, Metrics: make([]metricView, 0, len(all))}
	for _, d := range all {
		out.Metrics = append(out.Metrics, newMetricView(d, false))
	}
	writeJSON(w, http.StatusOK, out)
}

// descriptor resolves the {key} URL parameter, writing a 404 when unknown.
func (s *Server) descriptor(w http.ResponseWriter, r *http.Request) (metric.Descriptor, bool) {
	d, err := s.deps.Registry.Lookup(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown metric")
		return metric.Descriptor{}, false
	}
	return d, true
}

func (s *Server) handleGetMetric(w http.ResponseWriter, r *http.Request) {
	d, ok := s.descriptor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newMetricView(d, true))
}

func (s *Server) handleMetricRange(w http.ResponseWriter, r *http.Request) {
	d, ok := s.descriptor(w, r)
	if !ok {
		return
	}
	rng := d.Range(s.deps.Data.Current())
	writeJSON(w, http.StatusOK, rangeView{
		Metric: d.Key,
		Min:    rng.Min,
		Max:    rng.Max,
		Step:   rng.Step(d.Precision),
	})
}

func (s *Server) handleMetricLegend(w http.ResponseWriter, r *http.Request) {
	d, ok := s.descriptor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, d.Legend())
}

func (s *Server) handleMetricPaint(w http.ResponseWriter, r *http.Request) {
	d, ok := s.descriptor(w, r)
	if !ok {
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	u := render.Compose(d, filter, s.deps.Render)
	if ds := s.deps.Data.Current(); ds != nil {
		u.DatasetVersion = ds.Version()
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleMetricColor(w http.ResponseWriter, r *http.Request) {
	d, ok := s.descriptor(w, r)
	if !ok {
		return
	}
	out := colorView{Metric: d.Key}
	if raw := r.URL.Query().Get("value"); raw != "" {
		v, err := parseFinite(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "value must be a finite number")
			return
		}
		out.Value = &v
		out.Present = true
	}
	var v float64
	if out.Value != nil {
		v = *out.Value
	}
	out.Color = d.Color(v, out.Present)
	out.Label = d.FormatValue(v, out.Present)
	writeJSON(w, http.StatusOK, out)
}

// parseFilter reads the optional min/max query pair. Both or neither must be
// given.
func parseFilter(r *http.Request) (*dataset.Range, error) {
	q := r.URL.Query()
	rawMin, rawMax := q.Get("min"), q.Get("max")
	if rawMin == "" && rawMax == "" {
		return nil, nil
	}
	if rawMin == "" || rawMax == "" {
		return nil, errFilterPair
	}
	lo, err := parseFinite(rawMin)
	if err != nil {
		return nil, errFilterNumber
	}
	hi, err := parseFinite(rawMax)
	if err != nil {
		return nil, errFilterNumber
	}
	rng := dataset.Range{Min: lo, Max: hi}
	if err := rng.Validate(); err != nil {
		return nil, errFilterOrder
	}
	return &rng, nil
}

// parseFinite parses a query number. NaN and ±Inf have no JSON form and are
// rejected.
func parseFinite(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotFinite
	}
	return v, nil
}
