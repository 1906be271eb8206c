package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCase(t *testing.T) {
	assert.Empty(t, ValidateCase(testCase()))
}

func TestValidateCaseFieldPaths(t *testing.T) {
	c := &Case{
		CaseID: "case_bad",
		PrescriptionOrders: []Prescription{
			{DrugName: "", DosePerAdmin: Dose{Value: 100, Unit: "mg"}},
			{DrugName: "利福平胶囊", DosePerAdmin: Dose{Value: -1, Unit: "mg"}},
		},
	}
	errs := ValidateCase(c)
	require.Len(t, errs, 2)
	assert.Equal(t, "prescription_orders[0].drug_name", errs[0].Path)
	assert.Equal(t, "prescription_orders[1].dose_per_admin.value", errs[1].Path)
	assert.Equal(t, "prescription_orders[0].drug_name: drug name is required", errs[0].Error())
}

func TestValidateCaseNoPrescriptions(t *testing.T) {
	errs := ValidateCase(&Case{CaseID: "case_empty"})
	require.Len(t, errs, 1)
	assert.Equal(t, "prescription_orders", errs[0].Path)
}
