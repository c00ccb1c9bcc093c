package wid

import "testing"

func FuzzParseWid(f *testing.F) {
	f.Add("20260212T091530.0042Z")
	f.Add("20260212T091530.0042Z-0afc9d")
	f.Add("20260212T091530123.0042Z")
	f.Add("20260212T091530.0042Z-node01")
	f.Add("")
	f.Add("garbage")

	f.Fuzz(func(t *testing.T, s string) {
		for _, z := range []int{0, 6} {
			if p, err := ParseWid(s, 4, z); err == nil {
				if p.Raw != s {
					t.Fatalf("Raw = %q, input %q", p.Raw, s)
				}
				if !ValidateWid(s, 4, z) {
					t.Fatalf("parse succeeded but validation failed for %q", s)
				}
			}
			if p, err := ParseWidWithUnit(s, 4, z, TimeUnitMs); err == nil && p.Raw != s {
				t.Fatalf("Raw = %q, input %q", p.Raw, s)
			}
		}
	})
}

func FuzzParseHlcWid(f *testing.F) {
	f.Add("20260212T091530.0000Z-node01")
	f.Add("20260212T091530.0000Z-node01-0afc9d")
	f.Add("20260212T091530.0000Z-node-01")
	f.Add("")

	f.Fuzz(func(t *testing.T, s string) {
		for _, z := range []int{0, 6} {
			p, err := ParseHlcWid(s, 4, z)
			if err != nil {
				continue
			}
			if p.Raw != s {
				t.Fatalf("Raw = %q, input %q", p.Raw, s)
			}
			if !IsValidNode(p.Node) {
				t.Fatalf("parse accepted invalid node %q in %q", p.Node, s)
			}
		}
	})
}
