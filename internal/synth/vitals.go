package synth

import (
	"math"

	"github.com/synheart/vitalsynth/internal/models"
)

// Synthesizer turns a device's history into its next plausible reading.
// It holds no per-device state; callers serialize access to Rand.
type Synthesizer struct {
	Policy *Policy
	Rand   RandomSource
}

// NewSynthesizer creates a synthesizer over policy, drawing from rng.
func NewSynthesizer(policy *Policy, rng RandomSource) *Synthesizer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Synthesizer{Policy: policy, Rand: rng}
}

// SynthesizedVitals is the next-reading vector for one device.
type SynthesizedVitals struct {
	HeartRate      float64
	HeartRateAvg   float64
	SpO2           float64
	Temperature    float64
	Red            float64
	IR             float64
	FingerDetected bool
	HeartRateValid bool
	SpO2Valid      bool
	Regimes        Regimes
	Previous       DeviceState
	Original       models.RawReading
}

// Vitals walks every vital from the device's last stored value.
//
// Incoming heart rate, SpO2 and temperature are kept only in Original; the raw red/IR
// channels of the incoming sample seed the walk when the device has no stored channel value.
func (s *Synthesizer) Vitals(deviceID string, raw models.RawReading, history []models.Reading, hour int) SynthesizedVitals {
	last := LastValues(deviceID, history)
	p := s.Policy

	hrBand, _ := p.BandAt(VitalHeartRate, hour)
	spo2Band, _ := p.BandAt(VitalSpO2, hour)
	tempBand, _ := p.BandAt(VitalTemperature, hour)
	redBand, _ := p.BandAt(VitalRed, hour)
	irBand, _ := p.BandAt(VitalIR, hour)

	out := SynthesizedVitals{
		Regimes:        p.RegimeFor(hour),
		Previous:       last,
		Original:       raw,
		FingerDetected: true,
		HeartRateValid: true,
		SpO2Valid:      true,
	}

	out.HeartRate = Walk(last.HeartRate, hrBand, s.Rand)
	out.SpO2 = Walk(last.SpO2, spo2Band, s.Rand)
	out.Temperature = Walk(last.Temperature, tempBand, s.Rand)
	out.Red = Walk(channelStart(last.Red, last.HasRed, raw.Red, redBand), redBand, s.Rand)
	out.IR = Walk(channelStart(last.IR, last.HasIR, raw.IR, irBand), irBand, s.Rand)

	out.HeartRateAvg = out.HeartRate
	if raw.HeartRateAvg != nil && *raw.HeartRateAvg > 0 {
		out.HeartRateAvg = math.Round((out.HeartRate + *raw.HeartRateAvg) / 2)
	}

	return out
}

func channelStart(last float64, hasLast bool, incoming *float64, band Band) float64 {
	if hasLast {
		return last
	}
	if incoming != nil && *incoming > 0 {
		return *incoming
	}
	return band.Mid()
}
