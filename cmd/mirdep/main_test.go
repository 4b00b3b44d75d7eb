package main

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/opcodelabs/mirdep/alias"
	"github.com/opcodelabs/mirdep/memdep"
	"github.com/opcodelabs/mirdep/mir"
)

func TestDecodeHexInput(t *testing.T) {
	cases := []struct {
		in      string
		wantLen int
		wantErr bool
	}{
		{"602a", 2, false},
		{"0x602a", 2, false},
		{"  60 2a\n60 00  ", 4, false},
		{"60xx", 0, true},
	}
	for _, tc := range cases {
		code, err := decodeHexInput(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("decodeHexInput(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("decodeHexInput(%q): %v", tc.in, err)
		}
		if len(code) != tc.wantLen {
			t.Fatalf("decodeHexInput(%q): got %d bytes, want %d", tc.in, len(code), tc.wantLen)
		}
	}
}

func buildAnalysis(t *testing.T, codeHex string) (*mir.CFG, *memdep.Analysis) {
	t.Helper()
	code, err := decodeHexInput(codeHex)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	cfg := mir.NewCFG(common.Hash{}, code)
	if err := cfg.Parse(); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return cfg, memdep.NewAnalysis(alias.NewOracle(alias.DefaultPolicy()))
}

func TestDepsReport(t *testing.T) {
	cfg, analysis := buildAnalysis(t, "602a60005260005100")

	report := DepsReport(cfg, analysis)
	if !strings.Contains(report, "block 0 (pc 0..8):") {
		t.Fatalf("missing block header in report:\n%s", report)
	}
	if !strings.Contains(report, "Known(MSTORE@4)") {
		t.Fatalf("missing load dependency in report:\n%s", report)
	}
	if !strings.Contains(report, "None") {
		t.Fatalf("missing store result in report:\n%s", report)
	}
}

func TestDepsReportNonLocal(t *testing.T) {
	// Diamond: two stores on the branches, load at the merge.
	cfg, analysis := buildAnalysis(t, "6001600d5760016000556016565b60026000556016565b60005400")

	report := DepsReport(cfg, analysis)
	if !strings.Contains(report, "NonLocal") {
		t.Fatalf("expected non-local load in report:\n%s", report)
	}
	if !strings.Contains(report, "via block 1: Known(SSTORE@9)") {
		t.Fatalf("missing left branch resolution in report:\n%s", report)
	}
	if !strings.Contains(report, "via block 2: Known(SSTORE@18)") {
		t.Fatalf("missing right branch resolution in report:\n%s", report)
	}
}

func TestDepEdges(t *testing.T) {
	cfg, analysis := buildAnalysis(t, "6001600d5760016000556016565b60026000556016565b60005400")

	edges := DepEdges(cfg, analysis)
	if len(edges) != 2 {
		t.Fatalf("expected 2 dependence edges, got %d: %v", len(edges), edges)
	}
	for _, e := range edges {
		if e.From.Op() != mir.MirSLOAD || e.To.Op() != mir.MirSSTORE {
			t.Fatalf("unexpected edge %s -> %s", e.From, e.To)
		}
	}
}
