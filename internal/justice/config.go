package justice

import "github.com/ppiankov/auditor/internal/model"

// Config holds the synthesis thresholds. Comparisons are documented on the
// rules that consume them; zero fields take the defaults
type Config struct {
	NeutralScore         int     // Score assumed for a missing or conflicting judge
	DissentVariance      int     // variance >= this requires a dissent note
	ReEvaluationVariance int     // variance > this re-examines cited evidence
	TieBreakVariance     int     // variance >= this adopts the Tech Lead score
	TechLeadWeight       float64 // Tech Lead weight in the base mean
	HeavyTechLeadWeight  float64 // ...when the dimension says Tech Lead weighs heaviest
	CriticalFloor        int     // Prosecutor <= this on a security dimension vetoes
	SecurityLowScore     int     // Prosecutor or Tech Lead <= this caps a security dimension
	SecurityCap          float64
	HallucinationCap     float64
	GradeInflationLow    int // Prosecutor <= this limits the result to prosecutor+1
	PassThreshold        int
	GlobalVetoCap        float64
}

// DefaultConfig returns the current rule set
func DefaultConfig() Config {
	return ConfigFromModel(model.DefaultSynthesisConfig())
}

// ConfigFromModel converts the application config section
func ConfigFromModel(c model.SynthesisConfig) Config {
	return Config{
		NeutralScore:         c.NeutralScore,
		DissentVariance:      c.DissentVariance,
		ReEvaluationVariance: c.ReEvaluationVariance,
		TieBreakVariance:     c.TieBreakVariance,
		TechLeadWeight:       c.TechLeadWeight,
		HeavyTechLeadWeight:  c.HeavyTechLeadWeight,
		CriticalFloor:        c.CriticalFloor,
		SecurityLowScore:     c.SecurityLowScore,
		SecurityCap:          c.SecurityCap,
		HallucinationCap:     c.HallucinationCap,
		GradeInflationLow:    c.GradeInflationLow,
		PassThreshold:        c.PassThreshold,
		GlobalVetoCap:        c.GlobalVetoCap,
	}
}

// withDefaults fills unset fields
func (c Config) withDefaults() Config {
	d := model.DefaultSynthesisConfig()
	if c.NeutralScore == 0 {
		c.NeutralScore = d.NeutralScore
	}
	if c.DissentVariance == 0 {
		c.DissentVariance = d.DissentVariance
	}
	if c.ReEvaluationVariance == 0 {
		c.ReEvaluationVariance = d.ReEvaluationVariance
	}
	if c.TieBreakVariance == 0 {
		c.TieBreakVariance = d.TieBreakVariance
	}
	if c.TechLeadWeight <= 0 {
		c.TechLeadWeight = d.TechLeadWeight
	}
	if c.HeavyTechLeadWeight <= 0 {
		c.HeavyTechLeadWeight = d.HeavyTechLeadWeight
	}
	if c.CriticalFloor == 0 {
		c.CriticalFloor = d.CriticalFloor
	}
	if c.SecurityLowScore == 0 {
		c.SecurityLowScore = d.SecurityLowScore
	}
	if c.SecurityCap <= 0 {
		c.SecurityCap = d.SecurityCap
	}
	if c.HallucinationCap <= 0 {
		c.HallucinationCap = d.HallucinationCap
	}
	if c.GradeInflationLow == 0 {
		c.GradeInflationLow = d.GradeInflationLow
	}
	if c.PassThreshold == 0 {
		c.PassThreshold = d.PassThreshold
	}
	if c.GlobalVetoCap <= 0 {
		c.GlobalVetoCap = d.GlobalVetoCap
	}
	return c
}
