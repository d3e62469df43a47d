package qualification

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Multipliers is the industry weighting table applied to the base score.
type Multipliers struct {
	Default    float64            `yaml:"default"`
	Min        float64            `yaml:"min"`
	Max        float64            `yaml:"max"`
	Industries map[string]float64 `yaml:"industries"`
}

// DefaultMultipliers returns the built-in table.
func DefaultMultipliers() Multipliers {
	return Multipliers{
		Default: 1.0,
		Min:     0.8,
		Max:     1.15,
		Industries: map[string]float64{
			"financial services": 1.15,
			"finance":            1.15,
			"banking":            1.15,
			"insurance":          1.10,
			"healthcare":         1.12,
			"technology":         1.05,
			"saas":               1.05,
			"manufacturing":      1.05,
			"retail":             1.0,
			"education":          0.95,
			"government":         0.95,
			"nonprofit":          0.90,
			"non-profit":         0.90,
		},
	}
}

// LoadMultipliers parses a YAML table. Missing bounds fall back to the
// defaults.
func LoadMultipliers(r io.Reader) (Multipliers, error) {
	var m Multipliers
	if err := yaml.NewDecoder(r).Decode(&m); err != nil && err != io.EOF {
		return Multipliers{}, fmt.Errorf("qualification: decode multipliers: %w", err)
	}
	m = m.normalized()
	if m.Min > m.Max {
		return Multipliers{}, fmt.Errorf("qualification: multiplier min %.2f exceeds max %.2f", m.Min, m.Max)
	}
	return m, nil
}

// LoadMultipliersFile reads a YAML table from path.
func LoadMultipliersFile(path string) (Multipliers, error) {
	f, err := os.Open(path)
	if err != nil {
		return Multipliers{}, fmt.Errorf("qualification: open multipliers: %w", err)
	}
	defer f.Close()
	return LoadMultipliers(f)
}

// For returns the clamped multiplier for an industry. Exact matches win,
// then the longest table key found as whole words in the industry name.
// Keys of equal length resolve in lexical order.
func (m Multipliers) For(industry string) float64 {
	key := normalizeIndustry(industry)
	v, ok := m.Industries[key]
	if !ok && key != "" {
		padded := " " + key + " "
		best := ""
		for k, kv := range m.Industries {
			if !strings.Contains(padded, " "+k+" ") {
				continue
			}
			if len(k) > len(best) || (len(k) == len(best) && k < best) {
				best, v = k, kv
			}
		}
		ok = best != ""
	}
	if !ok {
		v = m.Default
	}
	return m.clamp(v)
}

func (m Multipliers) clamp(v float64) float64 {
	if v < m.Min {
		return m.Min
	}
	if v > m.Max {
		return m.Max
	}
	return v
}

func (m Multipliers) normalized() Multipliers {
	def := DefaultMultipliers()
	out := Multipliers{Default: m.Default, Min: m.Min, Max: m.Max}
	if out.Default == 0 {
		out.Default = def.Default
	}
	if out.Min == 0 {
		out.Min = def.Min
	}
	if out.Max == 0 {
		out.Max = def.Max
	}
	out.Industries = make(map[string]float64, len(m.Industries))
	for k, v := range m.Industries {
		if k = normalizeIndustry(k); k != "" {
			out.Industries[k] = v
		}
	}
	return out
}

func normalizeIndustry(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
