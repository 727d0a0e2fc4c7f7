package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Validation error codes (E100-E199)
const (
	ErrCodeNoDeployments    = "E100" // no deployment defined
	ErrCodeProjectDir       = "E101" // dbt.project_dir missing
	ErrCodeGlobalFlag       = "E102" // global flag is not a flag
	ErrCodeDBTField         = "E103" // other dbt field has the wrong type
	ErrCodePartitionColumn  = "E104" // empty partition expression
	ErrCodeModelPath        = "E105" // model path is absolute or escapes the project
	ErrCodeWarehouse        = "E106" // warehouse field has the wrong type
	ErrCodeStorePath        = "E107" // store path empty
	ErrCodeSelectorConflict = "E108" // select and exclude are identical
)

// ValidationError represents a semantic problem in a compiled Config.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled Config. Returns all errors found (does not
// fail-fast), ordered by deployment name.
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	if cfg.Translator.PartitionColumn == "" {
		errs = append(errs, ValidationError{
			Field:   "translator.partition_column",
			Message: "partition column must be non-empty",
			Code:    ErrCodePartitionColumn,
		})
	}
	for _, name := range sortedKeys(cfg.Translator.PartitionOverrides) {
		if strings.TrimSpace(cfg.Translator.PartitionOverrides[name]) == "" {
			errs = append(errs, ValidationError{
				Field:   "translator.partition_overrides." + name,
				Message: "partition expression must be non-empty",
				Code:    ErrCodePartitionColumn,
			})
		}
	}
	for _, p := range cfg.Translator.ModelPaths {
		clean := filepath.ToSlash(filepath.Clean(p))
		if filepath.IsAbs(p) || strings.HasPrefix(p, "/") || clean == ".." || strings.HasPrefix(clean, "../") {
			errs = append(errs, ValidationError{
				Field:   "translator.model_paths",
				Message: fmt.Sprintf("model path %q must be relative to the dbt project", p),
				Code:    ErrCodeModelPath,
			})
		}
	}

	if len(cfg.Deployments) == 0 {
		errs = append(errs, ValidationError{
			Field:   "deployment",
			Message: "at least one deployment is required",
			Code:    ErrCodeNoDeployments,
		})
	}

	for _, name := range cfg.Names() {
		errs = append(errs, validateDeployment(name, cfg.Deployments[name])...)
	}
	return errs
}

func validateDeployment(name string, d Deployment) []ValidationError {
	var errs []ValidationError
	field := func(f string) string { return "deployment." + name + "." + f }

	if strings.TrimSpace(d.DBT.ProjectDir) == "" {
		errs = append(errs, ValidationError{
			Field:   field("dbt.project_dir"),
			Message: "project_dir is required",
			Code:    ErrCodeProjectDir,
		})
	}
	for _, flag := range d.DBT.GlobalFlags {
		if !strings.HasPrefix(flag, "-") {
			errs = append(errs, ValidationError{
				Field:   field("dbt.global_flags"),
				Message: fmt.Sprintf("%q is not a flag", flag),
				Code:    ErrCodeGlobalFlag,
			})
		}
	}
	if d.DBT.Select != "" && d.DBT.Select == d.DBT.Exclude {
		errs = append(errs, ValidationError{
			Field:   field("dbt.exclude"),
			Message: fmt.Sprintf("exclude %q equals select and would skip every node", d.DBT.Exclude),
			Code:    ErrCodeSelectorConflict,
		})
	}
	if strings.TrimSpace(d.Store.Path) == "" {
		errs = append(errs, ValidationError{
			Field:   field("store.path"),
			Message: "store path is required",
			Code:    ErrCodeStorePath,
		})
	}
	return errs
}
