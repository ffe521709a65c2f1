// Package config holds the family applicability tables: which entity
// types participate in each KPI family and which stop types pause its
// clock. The tables are explicit data, not hard-coded checks, so deploys
// can override them from a YAML file.
package config

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"kpicalc/internal/model"
)

// FamilyRule is the applicability set for one KPI family.
type FamilyRule struct {
	EntityTypes []string         `yaml:"entityTypes"`
	StopTypes   []model.StopType `yaml:"stopTypes"`
}

// AppliesToEntity reports whether the entity type participates in the family.
func (r FamilyRule) AppliesToEntity(entityType string) bool {
	for _, t := range r.EntityTypes {
		if t == entityType {
			return true
		}
	}
	return false
}

// AllowsStop reports whether the stop type pauses this family's clock.
func (r FamilyRule) AllowsStop(st model.StopType) bool {
	for _, t := range r.StopTypes {
		if t == st {
			return true
		}
	}
	return false
}

// Families maps each KPI family to its rule.
type Families struct {
	SLA FamilyRule `yaml:"sla"`
	OLA FamilyRule `yaml:"ola"`
}

// Rule returns the rule for fam.
func (f Families) Rule(fam model.Family) FamilyRule {
	if fam == model.FamilyOLA {
		return f.OLA
	}
	return f.SLA
}

// Default returns the applicability tables of the production system.
// Entity-type spelling variants are deliberate; the taxonomy upstream is
// not normalized.
func Default() Families {
	return Families{
		SLA: FamilyRule{
			EntityTypes: []string{
				"Viabilidades", "Viabilidad",
				"Subviabilidades", "Subviabilidad",
				"Provisión", "Provision",
				"Provisión/Proyecto", "Provision/Proyecto",
				"PIP",
			},
			StopTypes: []model.StopType{model.StopGlobal},
		},
		OLA: FamilyRule{
			EntityTypes: []string{"Servicio interno", "Tarea"},
			StopTypes:   []model.StopType{model.StopGlobal, model.StopInterna, model.StopExterna},
		},
	}
}

// Load reads family rules from a YAML file.
func Load(path string) (Families, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Families{}, err
	}
	var f Families
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Families{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(f.SLA.StopTypes) == 0 || len(f.OLA.StopTypes) == 0 {
		return Families{}, fmt.Errorf("%s: both families need at least one stop type", path)
	}
	return f, nil
}

// FromEnv loads rules from KPI_FAMILIES_FILE when set, else Default.
func FromEnv() (Families, error) {
	if path := os.Getenv("KPI_FAMILIES_FILE"); path != "" {
		return Load(path)
	}
	return Default(), nil
}
