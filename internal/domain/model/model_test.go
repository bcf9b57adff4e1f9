package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddressSnapshot_Normalize(t *testing.T) {
	cases := []struct {
		name string
		in   AddressSnapshot
		want [3]string
	}{
		{"space separated", AddressSnapshot{Region: " Tokyo  Shibuya Jingumae "}, [3]string{"Tokyo", "Shibuya", "Jingumae"}},
		{"slash separated", AddressSnapshot{Region: "Osaka/Kita/Umeda"}, [3]string{"Osaka", "Kita", "Umeda"}},
		{"explicit fields win", AddressSnapshot{Region: "A B C", Province: "P"}, [3]string{"P", "B", "C"}},
		{"short region", AddressSnapshot{Region: "Tokyo"}, [3]string{"Tokyo", "", ""}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.in.Normalize()
			assert.Equal(t, tc.want, [3]string{got.Province, got.City, got.District})
		})
	}
}

func TestAddressSnapshot_MissingField(t *testing.T) {
	ok := AddressSnapshot{Name: "Sato", Phone: "09012345678", Detail: "1-2-3", Region: "Tokyo Shibuya Jingumae"}.Normalize()
	assert.Equal(t, "", ok.MissingField())

	noName := ok
	noName.Name = ""
	assert.Equal(t, "name", noName.MissingField())

	shortPhone := ok
	shortPhone.Phone = "123"
	assert.Equal(t, "phone", shortPhone.MissingField())

	noDetail := ok
	noDetail.Detail = ""
	assert.Equal(t, "detail", noDetail.MissingField())

	noRegion := ok
	noRegion.District = ""
	assert.Equal(t, "region", noRegion.MissingField())
}

func TestWelfareCode_Usage(t *testing.T) {
	c := WelfareCode{Status: WelfareCodeStatusActive, MaxUsage: 3, UsedCount: 2}
	assert.Equal(t, int64(1), c.Remaining())
	assert.True(t, c.Available())
	assert.False(t, c.Exhausted())

	c.UsedCount = 3
	assert.Equal(t, int64(0), c.Remaining())
	assert.False(t, c.Available())
	assert.True(t, c.Exhausted())

	c.Status = WelfareCodeStatusDisabled
	assert.False(t, c.Available())
	assert.False(t, c.Exhausted())
}

func TestComputeTotal(t *testing.T) {
	assert.Equal(t, int64(4000), ComputeTotal(2500, 1500, 0, 0))
	assert.Equal(t, int64(3500), ComputeTotal(2500, 1500, -500, 0))
	assert.Equal(t, int64(0), ComputeTotal(100, 0, -500, 0))
	assert.Equal(t, "USER:42", OperatorUser(42))
}
