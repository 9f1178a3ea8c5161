package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFile() File {
	return File{
		Resources: []Resource{
			{ID: "HS1", Name: "Head Spa 1", Category: CategoryHeadSpa},
			{ID: "AR1", Name: "Aroma Room 1", Category: CategoryAromaRoom},
			{ID: "MS1", Name: "Seat 1", Category: CategoryMassageSeat},
			{ID: "MS2", Name: "Seat 2", Category: CategoryMassageSeat},
		},
		Services: []Service{
			{ID: 1, Name: "Thai Massage 60", Category: "Massage", Type: ServiceSingle, DurationMinutes: 60, Price: 600},
			{ID: 2, Name: "Massage + Head Spa 90", Type: ServiceCombo, DurationMinutes: 90, MassageMinutes: 60, HeadSpaMinutes: 30, Price: 1200},
		},
	}
}

func TestNew(t *testing.T) {
	c, err := New(testFile())
	require.NoError(t, err)

	assert.Equal(t, 2, c.Capacity(CategoryMassageSeat))
	assert.Equal(t, 0, len(c.ResourcesIn(Category("sauna"))))

	seats := c.ResourcesIn(CategoryMassageSeat)
	require.Len(t, seats, 2)
	assert.Equal(t, "MS1", seats[0].ID)
	assert.Equal(t, "MS2", seats[1].ID)

	svc, ok := c.ServiceByName("  massage +   HEAD spa 90")
	require.True(t, ok)
	assert.Equal(t, int64(2), svc.ID)

	_, ok = c.Service(99)
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *File)
		errMsg string
	}{
		{"no resources", func(f *File) { f.Resources = nil }, "no resources defined"},
		{"duplicate resource", func(f *File) { f.Resources[1].ID = "HS1" }, "duplicate id HS1"},
		{"bad category", func(f *File) { f.Resources[0].Category = "sauna" }, "unknown category"},
		{"combo sum mismatch", func(f *File) { f.Services[1].HeadSpaMinutes = 45 }, "must equal duration_minutes"},
		{"zero duration", func(f *File) { f.Services[0].DurationMinutes = 0 }, "duration_minutes must be positive"},
		{"unknown type", func(f *File) { f.Services[0].Type = "bundle" }, "unknown type"},
		{"duplicate name", func(f *File) { f.Services[1].Name = "thai massage 60" }, "duplicate name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testFile()
			tt.mutate(&f)
			err := f.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := `
resources:
  - {id: HS1, name: Head Spa 1, category: head_spa}
  - {id: MS1, name: Seat 1, category: massage_seat}
services:
  - id: 1
    name: Foot Massage
    type: single
    duration_minutes: 45
    price: 400
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, c.Resources(), 2)
	assert.Contains(t, c.String(), "2 resources")
}

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		svc  Service
		want Category
	}{
		{Service{Name: "Aroma Oil 90"}, CategoryAromaRoom},
		{Service{Name: "Relax", Category: "Aromatherapy"}, CategoryAromaRoom},
		{Service{Name: "Japanese Head Spa"}, CategoryHeadSpa},
		{Service{Name: "Gold Facial"}, CategoryHeadSpa},
		{Service{Name: "Scalp", Category: "Treatment"}, CategoryHeadSpa},
		{Service{Name: "Thai Massage"}, CategoryMassageSeat},
		{Service{Name: "Something new"}, CategoryMassageSeat},
	}

	for _, tt := range tests {
		t.Run(tt.svc.Name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryFor(tt.svc))
		})
	}
}

func TestComboCategories(t *testing.T) {
	p, a := ComboCategories(Service{Name: "Aroma + Head Spa"})
	assert.Equal(t, CategoryAromaRoom, p)
	assert.Equal(t, CategoryHeadSpa, a)

	p, a = ComboCategories(Service{Name: "Thai + Head Spa"})
	assert.Equal(t, CategoryMassageSeat, p)
	assert.Equal(t, CategoryHeadSpa, a)
}

func TestAllowsStaff(t *testing.T) {
	open := Service{}
	assert.True(t, open.AllowsStaff(5))

	restricted := Service{AllowedStaff: []int64{1, 2}}
	assert.True(t, restricted.AllowsStaff(2))
	assert.False(t, restricted.AllowsStaff(3))
}
