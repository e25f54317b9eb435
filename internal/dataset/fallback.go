package dataset

// Metric keys of the bundled LDAC suitability data.
const (
	KeyElectric = "LDAC_suitability_elec"
	KeyGas      = "LDAC_suitability_gas"
	KeyCombined = "LDAC_combined"
)

// Fallback is the sample set installed when a load fails.
func Fallback() []Record {
	rows := []struct {
		id             string
		elec, gas, sum float64
	}{
		{"852c9043fffffff", 4.6, 0, 4.6},
		{"852c9047fffffff", 4.6, 0, 4.6},
		{"852c904bfffffff", 4.2, 0, 4.2},
		{"852c904ffffffff", 4.6, 0, 4.6},
		{"852c9053fffffff", 4.6, 0, 4.6},
		{"855215d3fffffff", 2.6, 2.2, 4.8},
		{"855215dbfffffff", 2.2, 1.8, 4.0},
		{"855221a7fffffff", 2, 0, 2.0},
	}
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = Record{ID: r.id, Values: map[string]float64{
			KeyElectric: r.elec,
			KeyGas:      r.gas,
			KeyCombined: r.sum,
		}}
	}
	return out
}
