package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/manthysbr/viyaOS/internal/core/domain"
)

type execOutput struct {
	Run     domain.RunResponse      `json:"run"`
	Status  *domain.StatusResponse  `json:"status,omitempty"`
	Results *domain.ResultsResponse `json:"results,omitempty"`
}

func newExecCmd() *cobra.Command {
	var (
		code      string
		file      string
		sessionID string
		library   string
		tableName string
	)

	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Submit code once, wait for it and print the results as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, err := readCode(code, file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.shutdown()
			orch := a.orch

			ctx := cmd.Context()
			out := execOutput{
				Run: orch.Run(ctx, domain.RunRequest{Code: src, SessionID: domain.SessionID(sessionID)}),
			}
			if out.Run.OK() {
				status := orch.Wait(ctx, out.Run.JobID, out.Run.SessionID)
				out.Status = &status
				results := orch.Results(ctx, domain.ResultsRequest{
					JobID:     out.Run.JobID,
					SessionID: out.Run.SessionID,
					Library:   library,
					TableName: tableName,
				})
				out.Results = &results
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}

			switch {
			case !out.Run.OK():
				return errors.New(out.Run.Message)
			case !out.Status.OK():
				return errors.New(out.Status.Message)
			case out.Status.State != domain.JobStateCompleted:
				return fmt.Errorf("job %s ended %s", out.Run.JobID, out.Status.State)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "code to submit")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read code from a file, - for stdin")
	cmd.Flags().StringVar(&sessionID, "session", "", "reuse an existing session")
	cmd.Flags().StringVar(&library, "library", "", "library of the result table (default work)")
	cmd.Flags().StringVar(&tableName, "table", "", "result table to fetch")
	return cmd
}

func readCode(code, file string, stdin io.Reader) (string, error) {
	switch {
	case code != "" && file != "":
		return "", errors.New("use either --code or --file")
	case code != "":
		return code, nil
	case file == "-":
		raw, err := io.ReadAll(stdin)
		return strings.TrimSpace(string(raw)), err
	case file != "":
		raw, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read code file: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	default:
		return "", errors.New("nothing to run: pass --code or --file")
	}
}
