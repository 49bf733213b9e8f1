package surface

import (
	"html/template"
	"testing"
)

func TestDocument_MountLookup(t *testing.T) {
	d := NewDocument()

	if _, ok := d.Lookup("missing"); ok {
		t.Fatal("expected missing container to be unresolved")
	}

	c := d.Mount("table")
	if again := d.Mount("table"); again != c {
		t.Error("expected Mount to return the existing container")
	}
	got, ok := d.Lookup("table")
	if !ok || got != c {
		t.Fatal("expected mounted container to resolve")
	}

	d.Mount("chart")
	d.Unmount("table")
	all := d.Containers()
	if len(all) != 1 || all[0].ID() != "chart" {
		t.Errorf("unexpected containers after unmount: %d", len(all))
	}
}

func TestContainer_Content(t *testing.T) {
	c := NewDocument().Mount("x")

	c.SetHTML(template.HTML("<p>a</p>"))
	c.Append(template.HTML("<p>b</p>"))
	if got := c.HTML(); got != "<p>a</p><p>b</p>" {
		t.Errorf("unexpected content: %s", got)
	}

	c.SetHTML(template.HTML("<p>c</p>"))
	if got := c.HTML(); got != "<p>c</p>" {
		t.Errorf("expected SetHTML to replace content, got %s", got)
	}
	if c.Version() != 3 {
		t.Errorf("expected version 3, got %d", c.Version())
	}

	c.Clear()
	if c.HTML() != "" {
		t.Error("expected empty content after Clear")
	}
	if c.UpdatedAt().IsZero() {
		t.Error("expected UpdatedAt to be set")
	}
}
