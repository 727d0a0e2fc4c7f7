package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"github.com/joho/godotenv"
)

//go:embed schema.cue
var schemaCUE string

// Error code constants for loading.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build or schema unification failed
	ErrCodeEnvFile     = "E007" // .env could not be parsed
)

// LoadMode controls how errors are handled during loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadError represents an error that occurred while loading a config dir.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load reads and compiles the configuration in dir, stopping at the first
// error, then validates it.
func Load(dir string) (*Config, error) {
	cfg, errs := LoadAll(dir, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	if verrs := Validate(cfg); len(verrs) > 0 {
		return nil, verrs[0]
	}
	return cfg, nil
}

// LoadAll reads and compiles the configuration in dir. With
// LoadModeCollectAll every deployment is compiled even after a failure, so
// all problems can be reported at once. Validation is left to the caller.
func LoadAll(dir string, mode LoadMode) (*Config, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing config directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	if err := loadDotEnv(dir); err != nil {
		return nil, []error{err}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{toLoadError(err, ErrCodeBuildFailed)}
	}

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("compiling schema: %v", err)}}
	}
	value = schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := value.Validate(); err != nil {
		return nil, []error{toLoadError(err, ErrCodeBuildFailed)}
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	cfg := &Config{Dir: abs, Deployments: map[string]Deployment{}}

	var errs []error
	if tv := value.LookupPath(cue.ParsePath("translator")); tv.Exists() {
		tc, err := CompileTranslator(tv)
		if err != nil {
			errs = append(errs, toLoadError(err, ErrCodeGeneric))
			if mode == LoadModeFailFast {
				return cfg, errs
			}
		} else {
			cfg.Translator = tc
		}
	}
	cfg.Translator = cfg.Translator.WithDefaults()

	if dv := value.LookupPath(cue.ParsePath("deployment")); dv.Exists() {
		iter, err := dv.Fields()
		if err != nil {
			errs = append(errs, toLoadError(err, ErrCodeGeneric))
			return cfg, errs
		}
		for iter.Next() {
			name := iter.Label()
			d, err := CompileDeployment(name, iter.Value())
			if err != nil {
				errs = append(errs, toLoadError(err, MapFieldToErrorCode(fieldOf(err))))
				if mode == LoadModeFailFast {
					return cfg, errs
				}
				continue
			}
			cfg.Deployments[name] = *d
		}
	}

	return cfg, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// loadDotEnv loads dir/.env when present. Variables already set in the
// environment are not overridden.
func loadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return &LoadError{Code: ErrCodeEnvFile, Message: fmt.Sprintf("loading %s: %v", path, err)}
	}
	return nil
}

// toLoadError converts compile and CUE errors to a LoadError with position info.
func toLoadError(err error, code string) *LoadError {
	var le *LoadError
	if errors.As(err, &le) {
		return le
	}
	var ce *CompileError
	if !errors.As(err, &ce) {
		if converted, ok := formatCUEError(err).(*CompileError); ok {
			ce = converted
		}
	}
	if ce != nil {
		return &LoadError{Code: code, Message: ce.Message, Pos: ce.Pos}
	}
	return &LoadError{Code: code, Message: err.Error()}
}

func fieldOf(err error) string {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Field
	}
	return ""
}
