package iniwriter

import (
	"strings"
	"testing"
)

func TestRenderContainsRequiredKeys(t *testing.T) {
	out := Render(InstanceConfig{
		RigName:        "TS-2000",
		CATNetworkPort: 7809,
		UDPServerPort:  2237,
		UDPServerHost:  "127.0.0.1",
		SoundInName:    "default",
		SoundOutName:   "default",
	})

	for _, want := range []string{
		"[Configuration]",
		"Rig=TS-2000",
		"CATNetworkPort=7809",
		"PTTMethod=CAT",
		"SplitMode=Rig",
		"UDPServerPort=2237",
		"UDPServer=127.0.0.1",
		"AcceptUDPRequests=true",
		"SoundInName=default",
		"SoundOutName=default",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered config missing %q:\n%s", want, out)
		}
	}
}

func TestSetReplacesExistingKey(t *testing.T) {
	doc := Document{}
	doc.Set("Configuration", "Rig", "TS-2000")
	doc.Set("Configuration", "Rig", "TS-590")
	out := doc.Render()
	if strings.Count(out, "Rig=") != 1 {
		t.Fatalf("expected exactly one Rig= line, got:\n%s", out)
	}
	if !strings.Contains(out, "Rig=TS-590") {
		t.Fatalf("expected updated value, got:\n%s", out)
	}
}

func TestMergeAddsExtraSections(t *testing.T) {
	base := InstanceConfig{RigName: "TS-2000", CATNetworkPort: 7809}
	out := Merge(base, map[string]map[string]string{
		"WSJT-X": {"MaxAudioDB": "-55"},
	})
	if !strings.Contains(out, "[WSJT-X]") || !strings.Contains(out, "MaxAudioDB=-55") {
		t.Fatalf("expected merged section, got:\n%s", out)
	}
	if !strings.Contains(out, "Rig=TS-2000") {
		t.Fatalf("expected base section preserved, got:\n%s", out)
	}
}
