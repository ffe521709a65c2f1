package config

import (
	"os"
	"path/filepath"
	"testing"

	"kpicalc/internal/model"
)

func TestDefaultApplicability(t *testing.T) {
	f := Default()

	for _, et := range []string{"Provisión", "Provision", "PIP", "Viabilidad"} {
		if !f.SLA.AppliesToEntity(et) {
			t.Errorf("SLA should apply to %q", et)
		}
		if f.OLA.AppliesToEntity(et) {
			t.Errorf("OLA should not apply to %q", et)
		}
	}
	for _, et := range []string{"Tarea", "Servicio interno"} {
		if !f.OLA.AppliesToEntity(et) {
			t.Errorf("OLA should apply to %q", et)
		}
		if f.SLA.AppliesToEntity(et) {
			t.Errorf("SLA should not apply to %q", et)
		}
	}
	if f.SLA.AppliesToEntity("Incidencia") {
		t.Error("unknown entity type should not match any family")
	}

	if !f.SLA.AllowsStop(model.StopGlobal) || f.SLA.AllowsStop(model.StopInterna) || f.SLA.AllowsStop(model.StopExterna) {
		t.Error("SLA clock pauses on Global stops only")
	}
	for _, st := range []model.StopType{model.StopGlobal, model.StopInterna, model.StopExterna} {
		if !f.OLA.AllowsStop(st) {
			t.Errorf("OLA should allow %q stops", st)
		}
	}
}

func TestRule(t *testing.T) {
	f := Default()
	if got := f.Rule(model.FamilySLA); len(got.StopTypes) != 1 {
		t.Errorf("Rule(sla) = %+v", got)
	}
	if got := f.Rule(model.FamilyOLA); len(got.StopTypes) != 3 {
		t.Errorf("Rule(ola) = %+v", got)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "families.yaml")
	doc := `
sla:
  entityTypes: ["Pedido"]
  stopTypes: ["Global"]
ola:
  entityTypes: ["Tarea"]
  stopTypes: ["Global", "Interna"]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !f.SLA.AppliesToEntity("Pedido") || f.SLA.AppliesToEntity("Provisión") {
		t.Errorf("loaded SLA rule = %+v", f.SLA)
	}
	if !f.OLA.AllowsStop(model.StopInterna) || f.OLA.AllowsStop(model.StopExterna) {
		t.Errorf("loaded OLA rule = %+v", f.OLA)
	}
}

func TestLoadRejectsEmptyStopTypes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "families.yaml")
	if err := os.WriteFile(path, []byte("sla:\n  entityTypes: [\"X\"]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing stop types")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("KPI_FAMILIES_FILE", "")
	f, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if !f.SLA.AppliesToEntity("PIP") {
		t.Error("FromEnv without file should return defaults")
	}

	t.Setenv("KPI_FAMILIES_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for missing file")
	}
}
