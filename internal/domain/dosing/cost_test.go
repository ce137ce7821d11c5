package dosing

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doseledger/doseledger/pkg/money"
)

func TestParseDosage(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"5", 5},
		{"2,5 mg", 2.5},
		{"2.5mg", 2.5},
		{" 7,5MG ", 7.5},
		{"mg 10", 10},
		{".5", 0.5},
		{"12.5 mg/semana", 12.5},
		{"", 0},
		{"abc", 0},
		{"-2", 0},
		{"0", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseDosage(tt.in), "ParseDosage(%q)", tt.in)
	}
}

func TestDosage_UnmarshalJSON(t *testing.T) {
	var v struct {
		Dosage Dosage `json:"dosage"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"dosage":"2,5 mg"}`), &v))
	assert.Equal(t, 2.5, v.Dosage.Mg())

	require.NoError(t, json.Unmarshal([]byte(`{"dosage":7.5}`), &v))
	assert.Equal(t, Dosage("7.5"), v.Dosage)

	require.Error(t, json.Unmarshal([]byte(`{"dosage":true}`), &v))
}

func TestCostOfDose_ScenarioA(t *testing.T) {
	med := &Medication{CostPerVial: money.FromReais(450), TotalContentMg: 10}
	c := CostOfDose(med, 5)

	assert.True(t, c.Reliable)
	assert.Equal(t, "45", c.CostPerMg.String())
	assert.Equal(t, money.FromReais(225), c.Cost)
}

func TestCostOfDose_ZeroContentIsSafe(t *testing.T) {
	for _, content := range []float64{0, -10, math.NaN(), math.Inf(1)} {
		med := &Medication{CostPerVial: money.FromReais(450), TotalContentMg: content}
		c := CostOfDose(med, 5)
		assert.Equal(t, money.Zero, c.Cost, "content %v", content)
		assert.False(t, c.Reliable, "content %v", content)
		assert.True(t, c.CostPerMg.IsZero())
	}
}

func TestCostOfDose_Unreliable(t *testing.T) {
	assert.False(t, CostOfDose(nil, 5).Reliable)
	assert.False(t, CostOfDose(&Medication{TotalContentMg: 10}, 5).Reliable)

	c := CostOfDose(&Medication{CostPerVial: money.FromReais(450), TotalContentMg: 10}, 0)
	assert.False(t, c.Reliable)
	assert.Equal(t, money.Zero, c.Cost)
	assert.Equal(t, "45", c.CostPerMg.String())
}

func TestCostOfDose_RoundsToCents(t *testing.T) {
	med := &Medication{CostPerVial: money.FromReais(100), TotalContentMg: 3}
	// 100 / 3 × 1 = 33.333…
	assert.Equal(t, money.FromCents(3333), CostOfDose(med, 1).Cost)
	// 100 / 3 × 2 = 66.666…
	assert.Equal(t, money.FromCents(6667), CostOfDose(med, 2).Cost)
}

func TestCostOfDose_NeverNegative(t *testing.T) {
	med := &Medication{CostPerVial: money.FromCents(-500), TotalContentMg: 10}
	c := CostOfDose(med, 5)
	assert.Equal(t, money.Zero, c.Cost)
	assert.False(t, c.Reliable)
}

func TestMedication_SuggestedDoseValue(t *testing.T) {
	med := &Medication{SalePricePerMg: money.FromReais(60)}
	assert.Equal(t, money.FromReais(150), med.SuggestedDoseValue(2.5))
	assert.Equal(t, money.Zero, med.SuggestedDoseValue(0))

	var none *Medication
	assert.Equal(t, money.Zero, none.SuggestedDoseValue(5))
}

func TestMedication_DoseVolumeML(t *testing.T) {
	med := &Medication{ConcentrationMgPerMl: 20}
	assert.Equal(t, 0.25, med.DoseVolumeML(5))
	assert.Equal(t, 0.13, med.DoseVolumeML(2.5))
	assert.Equal(t, 0.0, (&Medication{}).DoseVolumeML(5))
}

func TestInjection_Cost(t *testing.T) {
	inj := &Injection{
		Dosage:     "5 mg",
		DoseValue:  money.FromReais(300),
		Medication: &Medication{CostPerVial: money.FromReais(450), TotalContentMg: 10},
	}
	assert.Equal(t, 5.0, inj.DosageMg())
	assert.Equal(t, money.FromReais(225), inj.Cost().Cost)
}
