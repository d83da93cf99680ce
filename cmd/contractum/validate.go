package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/govm-net/contractum/core"
	"github.com/govm-net/contractum/engine"
	"github.com/govm-net/contractum/graph"
	"github.com/govm-net/contractum/operation"
	"github.com/govm-net/contractum/repository"
	"github.com/govm-net/contractum/validator"
	"github.com/spf13/cobra"
)

// batchSummary is the printed outcome of a batch.
type batchSummary struct {
	Batch    string          `json:"batch,omitempty"`
	Contract core.ContractID `json:"contract"`
	Applied  []core.OpID     `json:"applied"`
	Missing  []string        `json:"missingOperations,omitempty"`
	Failure  string          `json:"failure,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func newValidateCmd(opts *options) *cobra.Command {
	var (
		batchFile string
		contract  string
		ifaceRef  string
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a batch of operations",
		Long: `Validate a batch of operations read from a JSON file.
With --interface the batch must carry the genesis of a new contract; with
--contract it extends an existing one.
Example: contractum validate -f batch.json --interface RGB20@^1.0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (contract == "") == (ifaceRef == "") {
				return fmt.Errorf("exactly one of --contract and --interface is required")
			}
			ops, err := readBatch(cmd, batchFile)
			if err != nil {
				return err
			}
			e, err := opts.newEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			var report *graph.Report
			if contract != "" {
				id, err := core.ContractIDFromString(contract)
				if err != nil {
					return fmt.Errorf("invalid contract id: %w", err)
				}
				report, err = e.Submit(cmd.Context(), id, ops)
				return printSummary(cmd.OutOrStdout(), report, err)
			}
			id, err := resolveInterface(e, ifaceRef)
			if err != nil {
				return err
			}
			report, err = e.CreateContract(cmd.Context(), id, ops)
			return printSummary(cmd.OutOrStdout(), report, err)
		},
	}
	cmd.Flags().StringVarP(&batchFile, "file", "f", "", "JSON file with an operation or an array of operations, - for stdin (required)")
	cmd.Flags().StringVar(&contract, "contract", "", "identifier of an existing contract")
	cmd.Flags().StringVar(&ifaceRef, "interface", "", "interface id or name[@version constraint] of a new contract")
	cmd.MarkFlagRequired("file")
	return cmd
}

func readBatch(cmd *cobra.Command, path string) ([]*operation.Operation, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open batch file: %w", err)
		}
		defer f.Close()
		r = f
	}
	return operation.DecodeBatch(r)
}

// resolveInterface accepts an interface id or name[@constraint]. A standard
// interface that is not registered yet is registered on the fly.
func resolveInterface(e *engine.Engine, ref string) (core.IfaceID, error) {
	if id, err := core.IfaceIDFromString(ref); err == nil {
		return id, nil
	}
	name, constraint, _ := strings.Cut(ref, "@")
	ifc, err := e.Repository().FindByName(name, constraint)
	if errors.Is(err, repository.ErrNotFound) {
		build, ok := standardInterfaces[strings.ToUpper(name)]
		if !ok {
			return core.ZeroIfaceID, err
		}
		return e.RegisterInterface(build())
	}
	if err != nil {
		return core.ZeroIfaceID, err
	}
	return ifc.ID()
}

func printSummary(w io.Writer, report *graph.Report, err error) error {
	summary := batchSummary{Applied: []core.OpID{}}
	if report != nil {
		summary.Batch = report.Batch.String()
		summary.Contract = report.Contract
		summary.Applied = append(summary.Applied, report.Applied...)
		if report.Lifecycle != nil {
			summary.Missing = report.Lifecycle.Missing
		}
	}
	if err != nil {
		summary.Error = err.Error()
		if name, ok := validator.ErrorName(err); ok {
			summary.Failure = name
		} else if code, ok := validator.CodeOf(err); ok {
			summary.Failure = string(code)
		} else if errors.Is(err, validator.ErrConflict) {
			summary.Failure = "Conflict"
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(summary); encErr != nil {
		return errors.Join(err, encErr)
	}
	return err
}
