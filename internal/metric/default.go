package metric

import (
	"github.com/sells-group/hexplorer/internal/colorscale"
	"github.com/sells-group/hexplorer/internal/dataset"
)

// suitabilityStops is the green sequential scale shared by the LDAC metrics.
// The transparent stop at 0 is dropped by normalization; it is kept here so
// the table reads like the legend.
func suitabilityStops() []colorscale.Stop {
	return []colorscale.Stop{
		{Value: 0, Color: colorscale.Transparent()},
		{Value: 0.5, Color: colorscale.MustParseColor("#edf8e9")},
		{Value: 1, Color: colorscale.MustParseColor("#c7e9c0")},
		{Value: 2, Color: colorscale.MustParseColor("#a1d99b")},
		{Value: 3, Color: colorscale.MustParseColor("#74c476")},
		{Value: 4, Color: colorscale.MustParseColor("#31a354")},
		{Value: 5, Color: colorscale.MustParseColor("#006d2c")},
	}
}

// DefaultDescriptors are the LDAC suitability metrics.
func DefaultDescriptors() []Descriptor {
	base := func(key, name, desc, shp string) Descriptor {
		return Descriptor{
			Key:           key,
			Name:          name,
			Description:   desc,
			Unit:          "score",
			Stops:         suitabilityStops(),
			Policy:        colorscale.Interpolated,
			Sentinel:      colorscale.Transparent(),
			Precision:     1,
			DefaultDomain: dataset.ScoreRange,
			ShapeField:    shp,
		}
	}

	elec := base(dataset.KeyElectric, "LDAC Suitability (Electric)",
		"Suitability score for electric liquid desiccant air conditioning", "LDAC_ELEC")
	gas := base(dataset.KeyGas, "LDAC Suitability (Gas)",
		"Suitability score for gas-powered liquid desiccant air conditioning", "LDAC_GAS")
	combined := base(dataset.KeyCombined, "LDAC Combined Suitability",
		"Combined suitability score of electric and gas LDAC systems", "LDAC_COMB")
	combined.Derive = "round1(" + dataset.KeyElectric + " + " + dataset.KeyGas + ")"
	combined.Aliases = []string{"ldac combined", "combined"}

	return []Descriptor{elec, gas, combined}
}

// Default is the registry of the LDAC suitability metrics.
func Default() *Registry {
	r, err := New(DefaultDescriptors()...)
	if err != nil {
		panic(err)
	}
	return r
}
