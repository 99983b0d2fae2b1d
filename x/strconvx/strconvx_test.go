package strconvx

import "testing"

func TestItoa(t *testing.T) {
	cases := []struct {
		v    int
		want string
	}{
		{0, "0"},
		{7, "7"},
		{-7, "-7"},
		{512, "512"},
		{-65535, "-65535"},
		{1_000_000, "1000000"},
	}
	for _, c := range cases {
		if got := Itoa(c.v); got != c.want {
			t.Errorf("Itoa(%d) = %q, want %q", c.v, got, c.want)
		}
	}
}

func TestUitoa(t *testing.T) {
	cases := []struct {
		v    uint
		want string
	}{
		{0, "0"},
		{80, "80"},
		{65535, "65535"},
		{4294967295, "4294967295"},
	}
	for _, c := range cases {
		if got := Uitoa(c.v); got != c.want {
			t.Errorf("Uitoa(%d) = %q, want %q", c.v, got, c.want)
		}
	}
}
