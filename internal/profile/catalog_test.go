package profile

import (
	"errors"
	"testing"
	"testing/fstest"
)

func TestLoadDir(t *testing.T) {
	c := NewCatalog()

	n, err := c.LoadDir("testdata/profiles")
	if err != nil {
		t.Fatalf("LoadDir() error: %v", err)
	}
	if n != 3 {
		t.Errorf("LoadDir() loaded %d, want 3", n)
	}

	for _, id := range []string{"simple_switch", "wall_thermostat", "placeholder"} {
		if _, err := c.Get(id); err != nil {
			t.Errorf("Get(%q) error: %v", id, err)
		}
	}

	if _, err := c.Get("missing"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrProfileNotFound", err)
	}

	all := c.All()
	if len(all) != 3 || all[0].ID != "placeholder" || all[2].ID != "wall_thermostat" {
		t.Errorf("All() not sorted by id: %v", all)
	}
}

func TestLoadDirSkipsInvalid(t *testing.T) {
	c := NewCatalog()

	n, err := c.LoadDir("testdata/invalid")
	if n != 0 {
		t.Errorf("LoadDir() loaded %d, want 0", n)
	}
	if !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("LoadDir() error = %v, want ErrInvalidProfile", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestLoadFSMixed(t *testing.T) {
	fsys := fstest.MapFS{
		"plugs/plug.yaml": {Data: []byte(`name: Plug
primary: {entity: switch, properties: [power]}
datapoints:
  - {id: "1", type: boolean, property: power}`)},
		"plugs/broken.yml": {Data: []byte("name: [")},
		"README.md":        {Data: []byte("# not a profile")},
	}

	c := NewCatalog()
	n, err := c.LoadFS(fsys, ".")
	if n != 1 {
		t.Errorf("LoadFS() loaded %d, want 1", n)
	}
	if err == nil {
		t.Error("LoadFS() error = nil, want the broken document reported")
	}
	if _, err := c.Get("plug"); err != nil {
		t.Errorf("Get(plug) error: %v", err)
	}
}

func TestCatalogDuplicate(t *testing.T) {
	fsys := fstest.MapFS{
		"a.yaml": {Data: []byte("id: same\nname: A\nprimary: {entity: switch}")},
		"b.yaml": {Data: []byte("id: same\nname: B\nprimary: {entity: switch}")},
	}

	c := NewCatalog()
	n, err := c.LoadFS(fsys, ".")
	if n != 1 {
		t.Errorf("LoadFS() loaded %d, want 1", n)
	}
	if !errors.Is(err, ErrDuplicateProfile) {
		t.Errorf("LoadFS() error = %v, want ErrDuplicateProfile", err)
	}
}
