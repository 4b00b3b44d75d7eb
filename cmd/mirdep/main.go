// mirdep analyzes EVM bytecode and reports, for every memory operation, the
// nearest preceding operation it may depend on.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"

	"github.com/opcodelabs/mirdep/alias"
	"github.com/opcodelabs/mirdep/memdep"
	"github.com/opcodelabs/mirdep/mir"
)

var (
	policyPath string
	verbosity  int
)

func main() {
	root := &cobra.Command{
		Use:   "mirdep",
		Short: "Memory dependence analysis over EVM MIR",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			handler := log.NewTerminalHandlerWithLevel(os.Stderr, log.FromLegacyLevel(verbosity), false)
			log.SetDefault(log.NewLogger(handler))
		},
	}
	root.PersistentFlags().StringVar(&policyPath, "policy", "", "YAML alias policy file")
	root.PersistentFlags().IntVar(&verbosity, "verbosity", 3, "log verbosity (0=crit .. 5=trace)")

	depsCmd := &cobra.Command{
		Use:   "deps <hexcode>",
		Short: "Print the dependency of every memory operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, analysis, err := analyze(args[0])
			if err != nil {
				return err
			}
			fmt.Print(DepsReport(cfg, analysis))
			return nil
		},
	}

	dotCmd := &cobra.Command{
		Use:   "dot <hexcode>",
		Short: "Emit Graphviz DOT with dependence edges overlaid on the CFG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, analysis, err := analyze(args[0])
			if err != nil {
				return err
			}
			fmt.Print(cfg.ToDotWithDeps(DepEdges(cfg, analysis)))
			return nil
		},
	}

	root.AddCommand(depsCmd, dotCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func analyze(input string) (*mir.CFG, *memdep.Analysis, error) {
	code, err := decodeHexInput(input)
	if err != nil {
		return nil, nil, err
	}

	policy := alias.DefaultPolicy()
	if policyPath != "" {
		policy, err = alias.LoadPolicy(policyPath)
		if err != nil {
			return nil, nil, err
		}
	}

	cfg := mir.NewCFG(crypto.Keccak256Hash(code), code)
	if err := cfg.Parse(); err != nil {
		return nil, nil, fmt.Errorf("parse bytecode: %w", err)
	}
	return cfg, memdep.NewAnalysis(alias.NewOracle(policy)), nil
}

// decodeHexInput cleans up pasted bytecode: 0x prefix, whitespace, newlines.
func decodeHexInput(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, " ", "")
	code, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex input: %w", err)
	}
	return code, nil
}

// DepsReport renders a per-block listing of every memory operation and its
// dependency, expanding non-local results into their per-block resolution.
func DepsReport(cfg *mir.CFG, analysis *memdep.Analysis) string {
	var sb strings.Builder
	for _, block := range cfg.Blocks() {
		fmt.Fprintf(&sb, "block %d (pc %d..%d):\n", block.BlockNum(), block.FirstPC(), block.LastPC())
		for _, ins := range block.Instructions() {
			if !ins.IsMemoryOp() {
				continue
			}
			res := analysis.GetDependency(ins)
			fmt.Fprintf(&sb, "  %-24s %s\n", ins, res)
			if res.Kind() != memdep.NonLocal {
				continue
			}
			out := make(map[*mir.BasicBlock]memdep.Result)
			analysis.GetNonLocalDependency(ins, out)
			for _, line := range nonLocalLines(out) {
				sb.WriteString(line)
			}
		}
	}
	return sb.String()
}

func nonLocalLines(out map[*mir.BasicBlock]memdep.Result) []string {
	lines := make([]string, 0, len(out))
	for b, r := range out {
		lines = append(lines, fmt.Sprintf("    via block %d: %s\n", b.BlockNum(), r))
	}
	sort.Strings(lines)
	return lines
}

// DepEdges resolves every memory operation and collects the Known edges,
// local and non-local, for rendering.
func DepEdges(cfg *mir.CFG, analysis *memdep.Analysis) []mir.DepEdge {
	var edges []mir.DepEdge
	for _, block := range cfg.Blocks() {
		for _, ins := range block.Instructions() {
			if !ins.IsMemoryOp() {
				continue
			}
			res := analysis.GetDependency(ins)
			switch res.Kind() {
			case memdep.Known:
				edges = append(edges, mir.DepEdge{From: ins, To: res.Inst()})
			case memdep.NonLocal:
				out := make(map[*mir.BasicBlock]memdep.Result)
				analysis.GetNonLocalDependency(ins, out)
				for _, r := range out {
					if r.Kind() == memdep.Known {
						edges = append(edges, mir.DepEdge{From: ins, To: r.Inst()})
					}
				}
			}
		}
	}
	return edges
}
