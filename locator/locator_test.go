package locator

import (
	"sort"
	"testing"
)

func TestIdent(t *testing.T) {
	cases := []struct {
		l    Locator
		want string
	}{
		{Locator{Name: "b"}, "b"},
		{Locator{Scope: "org", Name: "pkg"}, "@org/pkg"},
	}
	for _, c := range cases {
		if got := c.l.Ident(); got != c.want {
			t.Errorf("Ident() = %q, want %q", got, c.want)
		}
	}
}

func TestHashDistinguishesVirtual(t *testing.T) {
	base := Locator{Name: "a", Version: "1.0.0"}
	virt := base
	virt.Virtual = true
	virt.VirtualKey = "peerSetA"

	if base.Hash() == virt.Hash() {
		t.Fatal("virtual and non-virtual locators must hash differently")
	}

	virt2 := virt
	virt2.VirtualKey = "peerSetB"
	if virt.Hash() == virt2.Hash() {
		t.Fatal("distinct virtual keys must hash differently")
	}
}

func TestDevirtualize(t *testing.T) {
	v := Locator{Name: "a", Version: "1.0.0", Virtual: true, VirtualKey: "x"}
	d := v.Devirtualize()
	if d.Virtual || d.VirtualKey != "" {
		t.Fatalf("Devirtualize left virtual state: %+v", d)
	}
	if d.Name != v.Name || d.Version != v.Version {
		t.Fatalf("Devirtualize altered identity: %+v", d)
	}
}

func TestSlugStable(t *testing.T) {
	l := Locator{Scope: "org", Name: "pkg", Version: "1.2.3"}
	s1 := Slug(l)
	s2 := Slug(l)
	if s1 != s2 {
		t.Fatalf("Slug not deterministic: %q != %q", s1, s2)
	}
	if s1 != Slug(Locator{Scope: "org", Name: "pkg", Version: "1.2.3"}) {
		t.Fatal("Slug must be a pure function of locator identity")
	}
}

func TestSlugDisambiguatesAliasedVersions(t *testing.T) {
	a := Locator{Name: "a", Version: "1.0.0"}
	b := Locator{Name: "a", Version: "2.0.0"}
	if Slug(a) == Slug(b) {
		t.Fatal("distinct versions must produce distinct slugs")
	}
}

func TestLessTotalOrder(t *testing.T) {
	ls := []Locator{
		{Name: "b", Version: "1.0.0"},
		{Name: "a", Version: "2.0.0"},
		{Name: "a", Version: "1.0.0"},
	}
	sort.Slice(ls, func(i, j int) bool { return ls[i].Less(ls[j]) })

	want := []string{"a@1.0.0", "a@2.0.0", "b@1.0.0"}
	for i, w := range want {
		if got := ls[i].String(); got != w {
			t.Errorf("position %d: got %q, want %q", i, got, w)
		}
	}
}

func TestParseIdent(t *testing.T) {
	cases := []struct {
		in          string
		scope, name string
	}{
		{"lodash", "", "lodash"},
		{"@org/pkg", "org", "pkg"},
		{"@org", "", "@org"}, // malformed scope-only input passes through
	}
	for _, c := range cases {
		scope, name := ParseIdent(c.in)
		if scope != c.scope || name != c.name {
			t.Errorf("ParseIdent(%q) = (%q, %q), want (%q, %q)", c.in, scope, name, c.scope, c.name)
		}
	}
}
