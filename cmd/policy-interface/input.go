package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ekaya-inc/policy-interface/pkg/apperrors"
	"github.com/ekaya-inc/policy-interface/pkg/logging"
	"github.com/ekaya-inc/policy-interface/pkg/models"
	"github.com/ekaya-inc/policy-interface/pkg/services"
)

// inputFlags locate the three documents a policy run needs.
type inputFlags struct {
	policyPath     string
	argsPath       string
	connectionPath string
}

type inputs struct {
	policy   *models.PolicyDocument
	execArgs *models.ExecutionArgs
	connArgs models.ConnectionArgs
}

func (f *inputFlags) load() (*inputs, error) {
	data, err := os.ReadFile(f.policyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	policy, err := services.DecodePolicy(data)
	if err != nil {
		return nil, err
	}

	in := &inputs{policy: policy, execArgs: &models.ExecutionArgs{}, connArgs: models.ConnectionArgs{}}
	if err := readJSON(f.argsPath, in.execArgs); err != nil {
		return nil, fmt.Errorf("failed to read execution args: %w", err)
	}
	if err := readJSON(f.connectionPath, &in.connArgs); err != nil {
		return nil, fmt.Errorf("failed to read connection args: %w", err)
	}
	return in, nil
}

// readJSON decodes path into v. An empty path leaves v untouched. Numbers
// are kept as json.Number so large integer ids reach queries unrounded.
func readJSON(path string, v any) error {
	if path == "" {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	dec := json.NewDecoder(file)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type errorBody struct {
	Code    apperrors.Code `json:"code"`
	Message string         `json:"message"`
}

// errorOutput renders err as the JSON error body printed on failure.
func errorOutput(err error) string {
	body := errorBody{Code: apperrors.CodeOf(err), Message: logging.SanitizeError(err)}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		body.Message = appErr.Message
	}
	data, _ := json.Marshal(body)
	return string(data)
}
