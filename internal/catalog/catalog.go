// Package catalog holds the immutable resource and service registries for the site.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is a closed set of physical resource kinds.
type Category string

const (
	CategoryHeadSpa     Category = "head_spa"
	CategoryAromaRoom   Category = "aroma_room"
	CategoryMassageSeat Category = "massage_seat"
)

// Categories in display order.
var Categories = []Category{CategoryHeadSpa, CategoryAromaRoom, CategoryMassageSeat}

func (c Category) Valid() bool {
	switch c {
	case CategoryHeadSpa, CategoryAromaRoom, CategoryMassageSeat:
		return true
	}
	return false
}

// Resource is a treatment room or seat.
type Resource struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Category Category `yaml:"category" json:"category"`
}

// ServiceType distinguishes single from two-leg combo services.
type ServiceType string

const (
	ServiceSingle ServiceType = "single"
	ServiceCombo  ServiceType = "combo"
)

// Service is a sellable treatment.
type Service struct {
	ID              int64       `yaml:"id" json:"id"`
	Name            string      `yaml:"name" json:"name"`
	Category        string      `yaml:"category" json:"category"`
	Type            ServiceType `yaml:"type" json:"type"`
	DurationMinutes int         `yaml:"duration_minutes" json:"duration_minutes"`
	MassageMinutes  int         `yaml:"massage_minutes,omitempty" json:"massage_minutes,omitempty"`
	HeadSpaMinutes  int         `yaml:"head_spa_minutes,omitempty" json:"head_spa_minutes,omitempty"`
	Price           int64       `yaml:"price" json:"price"`
	AllowedStaff    []int64     `yaml:"allowed_staff,omitempty" json:"allowed_staff,omitempty"`
}

// IsCombo reports whether the service splits into two legs.
func (s *Service) IsCombo() bool {
	return s.Type == ServiceCombo
}

// AllowsStaff reports whether staffID may perform the service. An empty list allows everyone.
func (s *Service) AllowsStaff(staffID int64) bool {
	if len(s.AllowedStaff) == 0 {
		return true
	}
	for _, id := range s.AllowedStaff {
		if id == staffID {
			return true
		}
	}
	return false
}

// File is the on-disk layout of catalog.yaml.
type File struct {
	Resources []Resource `yaml:"resources"`
	Services  []Service  `yaml:"services"`
}

// Catalog is built once at startup and never mutated.
type Catalog struct {
	resources  []Resource
	byCategory map[Category][]Resource
	byID       map[string]Resource
	services   []Service
	serviceIdx map[int64]int
	nameIdx    map[string]int
}

// Load reads and validates catalog.yaml.
func Load(path string) (*Catalog, error) {
	if path == "" {
		path = "configs/catalog.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	return New(f)
}

// New validates f and builds the registry. Resource order in f is the assignment order.
func New(f File) (*Catalog, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	c := &Catalog{
		resources:  append([]Resource(nil), f.Resources...),
		byCategory: make(map[Category][]Resource),
		byID:       make(map[string]Resource),
		serviceIdx: make(map[int64]int),
		nameIdx:    make(map[string]int),
	}
	for _, r := range c.resources {
		c.byCategory[r.Category] = append(c.byCategory[r.Category], r)
		c.byID[r.ID] = r
	}
	for i, s := range f.Services {
		s.AllowedStaff = append([]int64(nil), s.AllowedStaff...)
		c.services = append(c.services, s)
		c.serviceIdx[s.ID] = i
		c.nameIdx[normalizeName(s.Name)] = i
	}
	return c, nil
}

// Validate checks the file for errors.
func (f *File) Validate() error {
	if len(f.Resources) == 0 {
		return fmt.Errorf("no resources defined")
	}

	ids := make(map[string]bool)
	for i, r := range f.Resources {
		if r.ID == "" {
			return fmt.Errorf("resource[%d]: id is required", i)
		}
		if ids[r.ID] {
			return fmt.Errorf("resource[%d]: duplicate id %s", i, r.ID)
		}
		ids[r.ID] = true
		if !r.Category.Valid() {
			return fmt.Errorf("resource[%d]: unknown category '%s'", i, r.Category)
		}
	}

	serviceIDs := make(map[int64]bool)
	names := make(map[string]bool)
	for i, s := range f.Services {
		if s.ID <= 0 {
			return fmt.Errorf("service[%d]: id must be positive, got %d", i, s.ID)
		}
		if serviceIDs[s.ID] {
			return fmt.Errorf("service[%d]: duplicate id %d", i, s.ID)
		}
		serviceIDs[s.ID] = true

		if s.Name == "" {
			return fmt.Errorf("service[%d]: name is required", i)
		}
		key := normalizeName(s.Name)
		if names[key] {
			return fmt.Errorf("service[%d]: duplicate name '%s'", i, s.Name)
		}
		names[key] = true

		if s.DurationMinutes <= 0 {
			return fmt.Errorf("service[%d]: duration_minutes must be positive", i)
		}

		switch s.Type {
		case ServiceSingle:
		case ServiceCombo:
			if s.MassageMinutes <= 0 || s.HeadSpaMinutes <= 0 {
				return fmt.Errorf("service[%d]: combo needs positive massage_minutes and head_spa_minutes", i)
			}
			if s.MassageMinutes+s.HeadSpaMinutes != s.DurationMinutes {
				return fmt.Errorf("service[%d]: massage_minutes + head_spa_minutes must equal duration_minutes", i)
			}
		default:
			return fmt.Errorf("service[%d]: unknown type '%s'", i, s.Type)
		}
	}
	return nil
}

// Resources returns all resources in registry order.
func (c *Catalog) Resources() []Resource {
	return append([]Resource(nil), c.resources...)
}

// ResourcesIn returns the resources of one category in registry order.
func (c *Catalog) ResourcesIn(cat Category) []Resource {
	return append([]Resource(nil), c.byCategory[cat]...)
}

// Capacity is the number of resources in a category.
func (c *Catalog) Capacity(cat Category) int {
	return len(c.byCategory[cat])
}

// Resource looks up a resource by id.
func (c *Catalog) Resource(id string) (Resource, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// Services returns all services.
func (c *Catalog) Services() []Service {
	out := make([]Service, len(c.services))
	copy(out, c.services)
	return out
}

// Service looks up a service by id.
func (c *Catalog) Service(id int64) (Service, bool) {
	i, ok := c.serviceIdx[id]
	if !ok {
		return Service{}, false
	}
	return c.services[i], true
}

// ServiceByName looks up a service by display name, ignoring case and spacing.
func (c *Catalog) ServiceByName(name string) (Service, bool) {
	i, ok := c.nameIdx[normalizeName(name)]
	if !ok {
		return Service{}, false
	}
	return c.services[i], true
}

// String returns a summary of the catalog.
func (c *Catalog) String() string {
	return fmt.Sprintf("Catalog: %d resources (head_spa=%d aroma_room=%d massage_seat=%d), %d services",
		len(c.resources), c.Capacity(CategoryHeadSpa), c.Capacity(CategoryAromaRoom),
		c.Capacity(CategoryMassageSeat), len(c.services))
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
