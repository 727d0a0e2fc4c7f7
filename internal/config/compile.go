package config

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/dbtbridge/internal/translator"
)

// CompileError is a problem with a specific field of the CUE config.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileTranslator parses the translator block.
func CompileTranslator(v cue.Value) (translator.Config, error) {
	var tc translator.Config
	if err := v.Err(); err != nil {
		return tc, formatCUEError(err)
	}

	var err error
	if tc.PartitionColumn, err = optionalString(v, "partition_column"); err != nil {
		return tc, err
	}
	if tc.SourcePrefix, err = optionalString(v, "source_prefix"); err != nil {
		return tc, err
	}
	if tc.RawDataGroup, err = optionalString(v, "raw_data_group"); err != nil {
		return tc, err
	}
	if tc.UpstreamGroup, err = optionalString(v, "upstream_group"); err != nil {
		return tc, err
	}
	if tc.ModelPaths, err = optionalStrings(v, "model_paths"); err != nil {
		return tc, err
	}

	overrides := v.LookupPath(cue.ParsePath("partition_overrides"))
	if overrides.Exists() {
		iter, err := overrides.Fields()
		if err != nil {
			return tc, formatCUEError(err)
		}
		tc.PartitionOverrides = map[string]string{}
		for iter.Next() {
			expr, err := iter.Value().String()
			if err != nil {
				return tc, &CompileError{
					Field:   "partition_overrides." + iter.Label(),
					Message: "partition expression must be a string",
					Pos:     iter.Value().Pos(),
				}
			}
			tc.PartitionOverrides[iter.Label()] = expr
		}
	}

	return tc, nil
}

// CompileDeployment parses one deployment block.
func CompileDeployment(name string, v cue.Value) (*Deployment, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	d := &Deployment{Name: name}

	dbt := v.LookupPath(cue.ParsePath("dbt"))
	if !dbt.Exists() {
		return nil, &CompileError{Field: "dbt", Message: fmt.Sprintf("deployment %q: dbt block is required", name), Pos: v.Pos()}
	}

	projectDir := dbt.LookupPath(cue.ParsePath("project_dir"))
	dir, err := projectDir.String()
	if err != nil || dir == "" {
		return nil, &CompileError{
			Field:   "dbt.project_dir",
			Message: fmt.Sprintf("deployment %q: project_dir is required", name),
			Pos:     dbt.Pos(),
		}
	}
	d.DBT.ProjectDir = dir

	fields := []struct {
		path string
		dst  *string
	}{
		{"target", &d.DBT.Target},
		{"profiles_dir", &d.DBT.ProfilesDir},
		{"executable", &d.DBT.Executable},
		{"select", &d.DBT.Select},
		{"exclude", &d.DBT.Exclude},
	}
	for _, f := range fields {
		s, err := optionalString(dbt, f.path)
		if err != nil {
			return nil, prefixField("dbt", err)
		}
		*f.dst = s
	}

	flags, err := optionalStrings(dbt, "global_flags")
	if err != nil {
		return nil, prefixField("dbt", err)
	}
	if flags == nil {
		flags = []string{}
	}
	d.DBT.GlobalFlags = flags

	if pv := dbt.LookupPath(cue.ParsePath("prepare")); pv.Exists() {
		pv, _ = pv.Default()
		prepare, err := pv.Bool()
		if err != nil {
			return nil, &CompileError{Field: "dbt.prepare", Message: "prepare must be a bool", Pos: pv.Pos()}
		}
		d.DBT.Prepare = prepare
	}

	if wv := v.LookupPath(cue.ParsePath("warehouse")); wv.Exists() {
		if d.Warehouse.Path, err = optionalString(wv, "path"); err != nil {
			return nil, prefixField("warehouse", err)
		}
		if d.Warehouse.Schema, err = optionalString(wv, "schema"); err != nil {
			return nil, prefixField("warehouse", err)
		}
	}

	if sv := v.LookupPath(cue.ParsePath("store")); sv.Exists() {
		if d.Store.Path, err = optionalString(sv, "path"); err != nil {
			return nil, prefixField("store", err)
		}
	}

	return d, nil
}

// optionalString reads a string field, resolving defaults. A missing or
// unset optional field is "".
func optionalString(v cue.Value, path string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return "", nil
	}
	fv, _ = fv.Default()
	if !fv.IsConcrete() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{Field: path, Message: "must be a string", Pos: fv.Pos()}
	}
	return s, nil
}

// optionalStrings reads a list of strings, resolving defaults. A missing
// field is nil.
func optionalStrings(v cue.Value, path string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return nil, nil
	}
	fv, _ = fv.Default()
	if !fv.IsConcrete() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, &CompileError{Field: path, Message: "must be a list of strings", Pos: fv.Pos()}
	}
	out := []string{}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{Field: path, Message: "must be a list of strings", Pos: iter.Value().Pos()}
		}
		out = append(out, s)
	}
	return out, nil
}

func prefixField(prefix string, err error) error {
	if ce, ok := err.(*CompileError); ok {
		ce.Field = prefix + "." + ce.Field
		return ce
	}
	return err
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}

// MapFieldToErrorCode maps a compile error field to a validation code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "dbt", "dbt.project_dir":
		return ErrCodeProjectDir
	case "dbt.global_flags":
		return ErrCodeGlobalFlag
	case "dbt.prepare", "dbt.target", "dbt.profiles_dir", "dbt.executable", "dbt.select", "dbt.exclude":
		return ErrCodeDBTField
	case "warehouse.path", "warehouse.schema":
		return ErrCodeWarehouse
	case "store.path":
		return ErrCodeStorePath
	default:
		return ErrCodeGeneric
	}
}
