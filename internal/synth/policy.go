package synth

import (
	"fmt"

	"github.com/synheart/vitalsynth/internal/models"
)

// Vital names one synthesized channel.
type Vital string

const (
	VitalHeartRate   Vital = "heart_rate"
	VitalSpO2        Vital = "spo2"
	VitalTemperature Vital = "temperature"
	VitalRed         Vital = "red"
	VitalIR          Vital = "ir"
	VitalGlucose     Vital = "glucose"
)

// Vitals lists every channel in table order.
var Vitals = []Vital{VitalHeartRate, VitalSpO2, VitalTemperature, VitalRed, VitalIR, VitalGlucose}

// Regime is a time-of-day category that selects a band.
type Regime string

const (
	RegimeResting  Regime = "resting"
	RegimeActive   Regime = "active"
	RegimeNeutral  Regime = "neutral"
	RegimeMorning  Regime = "morning"
	RegimeEvening  Regime = "evening"
	RegimeFasting  Regime = "fasting"
	RegimePostMeal Regime = "post_meal"
	RegimeRegular  Regime = "regular"
	RegimeConstant Regime = "constant"
)

// Regimes is the regime of each regime family at one hour.
type Regimes struct {
	Circulatory Regime `json:"circulatory" yaml:"circulatory"`
	Thermal     Regime `json:"thermal" yaml:"thermal"`
	Glucose     Regime `json:"glucose" yaml:"glucose"`
}

// Window is an hour range, inclusive at both ends. From > To wraps past midnight.
type Window struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}

// Contains reports whether hour falls inside the window
func (w Window) Contains(hour int) bool {
	if w.From <= w.To {
		return hour >= w.From && hour <= w.To
	}
	return hour >= w.From || hour <= w.To
}

// Rule binds a regime and its hour windows to a band.
type Rule struct {
	Regime  Regime   `yaml:"regime"`
	Windows []Window `yaml:"windows,omitempty"`
	Band    Band     `yaml:"band"`
}

func (r Rule) matches(hour int) bool {
	for _, w := range r.Windows {
		if w.Contains(hour) {
			return true
		}
	}
	return false
}

// VitalPolicy is an ordered rule list for one vital; the first matching rule wins.
type VitalPolicy struct {
	Rules   []Rule `yaml:"rules,omitempty"`
	Default Rule   `yaml:"default"`
}

func (vp *VitalPolicy) match(hour int) Rule {
	for _, rule := range vp.Rules {
		if rule.matches(hour) {
			return rule
		}
	}
	return vp.Default
}

func (vp *VitalPolicy) byRegime(regime Regime) (Band, bool) {
	for _, rule := range vp.Rules {
		if rule.Regime == regime {
			return rule.Band, true
		}
	}
	if vp.Default.Regime == regime {
		return vp.Default.Band, true
	}
	return Band{}, false
}

// Policy is the complete time-of-day band table.
type Policy struct {
	Name        string      `yaml:"name"`
	HeartRate   VitalPolicy `yaml:"heart_rate"`
	SpO2        VitalPolicy `yaml:"spo2"`
	Temperature VitalPolicy `yaml:"temperature"`
	Red         VitalPolicy `yaml:"red"`
	IR          VitalPolicy `yaml:"ir"`
	Glucose     VitalPolicy `yaml:"glucose"`
}

// DefaultPolicy returns the built-in band table.
func DefaultPolicy() *Policy {
	return &Policy{
		Name: "default",
		HeartRate: VitalPolicy{
			Rules: []Rule{
				{Regime: RegimeResting, Windows: []Window{{From: 22, To: 6}}, Band: Band{Min: 55, Max: 75, MinChange: 1}},
				{Regime: RegimeActive, Windows: []Window{{From: 9, To: 18}}, Band: Band{Min: 65, Max: 90, MinChange: 1}},
			},
			Default: Rule{Regime: RegimeNeutral, Band: Band{Min: 60, Max: 95, MinChange: 1}},
		},
		SpO2: VitalPolicy{
			Default: Rule{Regime: RegimeConstant, Band: Band{Min: 95, Max: 100, MinChange: 0.5, Decimals: 1}},
		},
		Temperature: VitalPolicy{
			Rules: []Rule{
				{Regime: RegimeMorning, Windows: []Window{{From: 6, To: 10}}, Band: Band{Min: 36.0, Max: 36.8, MinChange: 0.1, Decimals: 1}},
				{Regime: RegimeEvening, Windows: []Window{{From: 16, To: 20}}, Band: Band{Min: 36.5, Max: 37.2, MinChange: 0.1, Decimals: 1}},
			},
			Default: Rule{Regime: RegimeNeutral, Band: Band{Min: 36.1, Max: 37.2, MinChange: 0.1, Decimals: 1}},
		},
		Red: VitalPolicy{
			Default: Rule{Regime: RegimeConstant, Band: Band{Min: 75000, Max: 120000, MinChange: 1000}},
		},
		IR: VitalPolicy{
			Default: Rule{Regime: RegimeConstant, Band: Band{Min: 80000, Max: 120000, MinChange: 1000}},
		},
		Glucose: VitalPolicy{
			Rules: []Rule{
				{Regime: RegimeFasting, Windows: []Window{{From: 22, To: 7}}, Band: Band{Min: 75, Max: 95, MinChange: 0.5, Decimals: 1}},
				{Regime: RegimePostMeal, Windows: []Window{{From: 8, To: 10}, {From: 12, To: 14}, {From: 18, To: 20}}, Band: Band{Min: 80, Max: 99, MinChange: 0.5, Decimals: 1}},
			},
			Default: Rule{Regime: RegimeRegular, Band: Band{Min: 75, Max: 99, MinChange: 0.5, Decimals: 1}},
		},
	}
}

func (p *Policy) vital(v Vital) (*VitalPolicy, error) {
	switch v {
	case VitalHeartRate:
		return &p.HeartRate, nil
	case VitalSpO2:
		return &p.SpO2, nil
	case VitalTemperature:
		return &p.Temperature, nil
	case VitalRed:
		return &p.Red, nil
	case VitalIR:
		return &p.IR, nil
	case VitalGlucose:
		return &p.Glucose, nil
	}
	return nil, fmt.Errorf("unknown vital %q", v)
}

// RegimeFor maps an hour of day to the regime of each family.
func (p *Policy) RegimeFor(hour int) Regimes {
	return Regimes{
		Circulatory: p.HeartRate.match(hour).Regime,
		Thermal:     p.Temperature.match(hour).Regime,
		Glucose:     p.Glucose.match(hour).Regime,
	}
}

// BandFor returns the band a vital uses under the given regime.
func (p *Policy) BandFor(v Vital, regime Regime) (Band, bool) {
	vp, err := p.vital(v)
	if err != nil {
		return Band{}, false
	}
	return vp.byRegime(regime)
}

// BandAt returns the band and regime that apply to a vital at hour.
// It panics on an unknown vital.
func (p *Policy) BandAt(v Vital, hour int) (Band, Regime) {
	vp, err := p.vital(v)
	if err != nil {
		panic("synth: " + err.Error())
	}
	rule := vp.match(hour)
	return rule.Band, rule.Regime
}

// envelopes pins the vitals whose bands must stay inside the stored-value envelope.
var envelopes = map[Vital]models.Envelope{
	VitalHeartRate:   models.HeartRateEnvelope,
	VitalSpO2:        models.SpO2Envelope,
	VitalTemperature: models.TemperatureEnvelope,
	VitalGlucose:     models.GlucoseEnvelope,
}

// Validate checks every band, window and envelope of the policy.
func (p *Policy) Validate() error {
	for _, v := range Vitals {
		vp, _ := p.vital(v)
		rules := append(append([]Rule{}, vp.Rules...), vp.Default)
		for i, rule := range rules {
			if rule.Regime == "" {
				return fmt.Errorf("%s rule %d: regime is required", v, i)
			}
			if err := rule.Band.Validate(); err != nil {
				return fmt.Errorf("%s/%s: %w", v, rule.Regime, err)
			}
			for _, w := range rule.Windows {
				if w.From < 0 || w.From > 23 || w.To < 0 || w.To > 23 {
					return fmt.Errorf("%s/%s: window %d-%d outside 0..23", v, rule.Regime, w.From, w.To)
				}
			}
			if env, ok := envelopes[v]; ok {
				if !env.Contains(rule.Band.Min) || !env.Contains(rule.Band.Max) {
					return fmt.Errorf("%s/%s: band %g-%g outside envelope %g-%g",
						v, rule.Regime, rule.Band.Min, rule.Band.Max, env.Min, env.Max)
				}
			}
		}
	}
	return nil
}

// TableRow is the effective policy at one hour.
type TableRow struct {
	Hour    int
	Regimes Regimes
	Bands   map[Vital]Band
}

// Table expands the policy into one row per hour of the day.
func (p *Policy) Table() []TableRow {
	rows := make([]TableRow, 0, 24)
	for hour := 0; hour < 24; hour++ {
		row := TableRow{
			Hour:    hour,
			Regimes: p.RegimeFor(hour),
			Bands:   make(map[Vital]Band, len(Vitals)),
		}
		for _, v := range Vitals {
			band, _ := p.BandAt(v, hour)
			row.Bands[v] = band
		}
		rows = append(rows, row)
	}
	return rows
}
