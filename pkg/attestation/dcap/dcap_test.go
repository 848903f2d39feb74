package dcap

import "testing"

func TestVerifiedOutputToBytesDeterministic(t *testing.T) {
	out := VerifiedOutput{
		Version:     1,
		TCBStatus:   "SWHardeningNeeded",
		FMSPC:       [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06},
		AdvisoryIDs: []string{"INTEL-SA-00334", "INTEL-SA-00615"},
		ReportData:  [64]byte{0xFF},
	}
	a := out.ToBytes()
	b := out.ToBytes()
	if len(a) != len(b) {
		t.Fatalf("ToBytes() not deterministic in length: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("ToBytes() not deterministic at byte %d", i)
		}
	}
}

func TestVerifiedOutputToBytesDiffersOnAdvisories(t *testing.T) {
	base := VerifiedOutput{Version: 1, TCBStatus: "OK", FMSPC: [6]byte{0x01}}
	withAdvisory := base
	withAdvisory.AdvisoryIDs = []string{"INTEL-SA-00334"}

	if string(base.ToBytes()) == string(withAdvisory.ToBytes()) {
		t.Fatalf("ToBytes() did not change when advisories were added")
	}
}

func TestWalkTCBLevelsPicksFirstMatching(t *testing.T) {
	info := TCBInfo{
		Levels: []TCBLevel{
			{CPUSVN: [16]byte{10}, PCESVN: 5, Status: "UpToDate"},
			{CPUSVN: [16]byte{1}, PCESVN: 1, Status: "SWHardeningNeeded", Advisories: []string{"INTEL-SA-00334"}},
		},
	}
	status, advisories, err := walkTCBLevels(info, [16]byte{5}, 3)
	if err != nil {
		t.Fatalf("walkTCBLevels() error = %v", err)
	}
	if status != "SWHardeningNeeded" {
		t.Fatalf("walkTCBLevels() status = %s, want SWHardeningNeeded", status)
	}
	if len(advisories) != 1 || advisories[0] != "INTEL-SA-00334" {
		t.Fatalf("walkTCBLevels() advisories = %v", advisories)
	}
}

func TestWalkTCBLevelsNoMatch(t *testing.T) {
	info := TCBInfo{Levels: []TCBLevel{{CPUSVN: [16]byte{1}, PCESVN: 1, Status: "UpToDate"}}}
	if _, _, err := walkTCBLevels(info, [16]byte{}, 0); err == nil {
		t.Fatalf("walkTCBLevels() with no satisfiable level succeeded, want error")
	}
}
