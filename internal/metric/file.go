package metric

import (
	"bytes"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/hexplorer/internal/colorscale"
	"github.com/sells-group/hexplorer/internal/dataset"
)

// fileDescriptor is the YAML form of a Descriptor.
type fileDescriptor struct {
	Key         string               `yaml:"key"`
	Name        string               `yaml:"name"`
	Description string               `yaml:"description"`
	Unit        string               `yaml:"unit"`
	Policy      string               `yaml:"policy"`
	Sentinel    string               `yaml:"sentinel"`
	Precision   *int                 `yaml:"precision"`
	Domain      *dataset.Range       `yaml:"domain"`
	Derive      string               `yaml:"derive"`
	Aliases     []string             `yaml:"aliases"`
	ShapeField  string               `yaml:"shape_field"`
	Stops       []colorscale.RawStop `yaml:"stops"`
}

type fileRegistry struct {
	Metrics []fileDescriptor `yaml:"metrics"`
}

// LoadFile reads a YAML registry:
//
//	metrics:
//	  - key: LDAC_suitability_elec
//	    name: LDAC Suitability (Electric)
//	    policy: stepped
//	    stops:
//	      - {value: 1, color: "#c7e9c0"}
//
// A malformed stop color is painted Neutral and logged; the rest of the file
// must be valid.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "metric: read registry %s", path)
	}
	return Parse(data)
}

// Parse decodes a YAML registry. Unknown fields are rejected.
func Parse(data []byte) (*Registry, error) {
	var fr fileRegistry
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fr); err != nil {
		return nil, eris.Wrap(err, "metric: decode registry")
	}

	descs := make([]Descriptor, 0, len(fr.Metrics))
	for _, fd := range fr.Metrics {
		d, err := fd.descriptor()
		if err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	return New(descs...)
}

func (fd fileDescriptor) descriptor() (Descriptor, error) {
	d := Descriptor{
		Key:         fd.Key,
		Name:        fd.Name,
		Description: fd.Description,
		Unit:        fd.Unit,
		Precision:   1,
		Derive:      fd.Derive,
		Aliases:     fd.Aliases,
		ShapeField:  fd.ShapeField,
		Sentinel:    colorscale.Transparent(),
	}
	if fd.Precision != nil {
		if *fd.Precision < 0 {
			return Descriptor{}, eris.Errorf("metric: %q precision %d is negative", fd.Key, *fd.Precision)
		}
		d.Precision = *fd.Precision
	}
	if fd.Domain != nil {
		d.DefaultDomain = *fd.Domain
	}
	if fd.Policy != "" {
		p, err := colorscale.ParsePolicy(fd.Policy)
		if err != nil {
			return Descriptor{}, eris.Wrapf(err, "metric: %q", fd.Key)
		}
		d.Policy = p
	}
	if fd.Sentinel != "" {
		c, err := colorscale.ParseColor(fd.Sentinel)
		if err != nil {
			return Descriptor{}, eris.Wrapf(err, "metric: %q sentinel", fd.Key)
		}
		d.Sentinel = c
	}

	d.Stops = make([]colorscale.Stop, 0, len(fd.Stops))
	for _, rs := range fd.Stops {
		c, err := colorscale.ParseColor(rs.Color)
		if err != nil {
			zap.L().Warn("metric: malformed stop color, using neutral",
				zap.String("metric", fd.Key),
				zap.Float64("value", rs.Value),
				zap.Error(err),
			)
			c = colorscale.Neutral
		}
		d.Stops = append(d.Stops, colorscale.Stop{Value: rs.Value, Color: c})
	}
	return d, nil
}
