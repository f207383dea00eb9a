package chainconfig

import "testing"

func TestProfileForCoversAllChains(t *testing.T) {
	for _, c := range []Chain{Polkadot, Kusama, Substrate} {
		p := ProfileFor(c)
		if p.Chain != c {
			t.Fatalf("profile for %v has wrong Chain field %v", c, p.Chain)
		}
		if p.DefaultMaxVotes == 0 {
			t.Fatalf("profile for %v has zero DefaultMaxVotes", c)
		}
	}
}

func TestSS58VersionsMatchKnownNetworks(t *testing.T) {
	if ProfileFor(Polkadot).SS58Version != 0 {
		t.Fatal("polkadot ss58 version should be 0")
	}
	if ProfileFor(Kusama).SS58Version != 2 {
		t.Fatal("kusama ss58 version should be 2")
	}
	if ProfileFor(Substrate).SS58Version != 42 {
		t.Fatal("substrate ss58 version should be 42")
	}
}

func TestParseChainCaseInsensitive(t *testing.T) {
	c, err := ParseChain("KUSAMA")
	if err != nil || c != Kusama {
		t.Fatalf("expected Kusama, got %v err %v", c, err)
	}
	if _, err := ParseChain("not-a-chain"); err == nil {
		t.Fatal("expected error for unknown chain")
	}
}

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm("seq-phragmen")
	if err != nil || a != SeqPhragmen {
		t.Fatalf("expected SeqPhragmen, got %v err %v", a, err)
	}
	a, err = ParseAlgorithm("phragmms")
	if err != nil || a != Phragmms {
		t.Fatalf("expected Phragmms, got %v err %v", a, err)
	}
	if _, err := ParseAlgorithm("bogus"); err == nil {
		t.Fatal("expected error for unknown algorithm")
	}
}

func TestInferFromSpecName(t *testing.T) {
	cases := map[string]Chain{
		"polkadot":  Polkadot,
		"Kusama":    Kusama,
		"westend":   Substrate,
		"rococo":    Substrate,
		"statemint": Polkadot,
		"statemine": Kusama,
	}
	for name, want := range cases {
		got, err := InferFromSpecName(name)
		if err != nil {
			t.Fatalf("InferFromSpecName(%q) error: %v", name, err)
		}
		if got != want {
			t.Fatalf("InferFromSpecName(%q) = %v, want %v", name, got, want)
		}
	}
	if _, err := InferFromSpecName("some-unrelated-chain"); err == nil {
		t.Fatal("expected error for unrecognized spec_name")
	}
}
