package spec

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/quarrycli/quarry/internal/errs"
)

// argToken matches one `name(value)` argument token. value never contains
// ',' (the list is split on it first) but may contain parentheses: it is
// everything between the first '(' and the token's final ')'.
var argToken = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_]*)\((.*)\)$`)

// rawArg is one parsed `name(value)` pair in declaration order.
type rawArg struct {
	name  string
	value string
}

// Parse turns one validator spec string into a typed Validator. It never
// panics: every malformed input yields an error wrapping errs.SpecInvalid,
// never a partial Validator.
func Parse(raw string) (*Validator, error) {
	kindStr, argStr, hasColon := strings.Cut(raw, ":")
	kindStr = strings.ToLower(strings.TrimSpace(kindStr))
	if kindStr == "" {
		return nil, errors.Wrapf(errs.SpecInvalid, "empty validator kind in spec %q", raw)
	}

	var args []rawArg
	if hasColon && strings.TrimSpace(argStr) != "" {
		var err error
		args, err = parseArgList(argStr)
		if err != nil {
			return nil, errors.Wrapf(err, "spec %q", raw)
		}
	}

	argMap, err := dedupe(args)
	if err != nil {
		return nil, errors.Wrapf(err, "spec %q", raw)
	}

	builder, ok := builders[Kind(kindStr)]
	if !ok {
		return nil, errors.Wrapf(errs.SpecInvalid, "unknown validator kind %q", kindStr)
	}

	v, err := builder(argMap)
	if err != nil {
		return nil, errors.Wrapf(err, "spec %q", raw)
	}
	return v, nil
}

// parseArgList splits a top-level comma-separated argument list (parens do
// not nest) and validates each token's shape.
func parseArgList(argStr string) ([]rawArg, error) {
	parts := strings.Split(argStr, ",")
	args := make([]rawArg, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, errors.Wrap(errs.SpecInvalid, "empty argument in list")
		}
		m := argToken.FindStringSubmatch(part)
		if m == nil {
			return nil, errors.Wrapf(errs.SpecInvalid, "malformed argument %q", part)
		}
		args = append(args, rawArg{name: m[1], value: m[2]})
	}
	return args, nil
}

// dedupe validates that no argument name repeats and returns a lookup map.
func dedupe(args []rawArg) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, a := range args {
		if _, exists := out[a.name]; exists {
			return nil, errors.Wrapf(errs.SpecInvalid, "duplicate argument %q", a.name)
		}
		out[a.name] = a.value
	}
	return out, nil
}

// builders maps each closed Kind to its argument constructor. Registering
// here, rather than a type switch scattered across files, keeps the set of
// recognized kinds in one place the parser, and only the parser, owns.
var builders = map[Kind]func(map[string]string) (*Validator, error){
	KindFileExists:         buildFileExists,
	KindCanCompile:         buildCanCompile,
	KindTCPListening:       buildTCPListening,
	KindHTTPResponse:       buildHTTPResponse,
	KindHTTPGetFile:        buildHTTPGetFile,
	KindHTTPGetCompressed:  buildHTTPGetCompressed,
	KindJSONResponse:       buildJSONResponse,
	KindConcurrentRequests: buildConcurrentRequests,
	KindRateLimit:          buildRateLimit,
	KindGracefulShutdown:   buildGracefulShutdown,
	KindRaceDetector:       buildRaceDetector,
	KindGoCompile:          buildGoCompile,
	KindJobQueueScenario:   buildJobQueueScenario,
	KindWorkerPoolScenario: buildWorkerPoolScenario,
}

func required(args map[string]string, name string) (string, error) {
	v, ok := args[name]
	if !ok {
		return "", errors.Wrapf(errs.SpecInvalid, "missing required argument %q", name)
	}
	return v, nil
}

// requiredInt reads a required argument, accepting the bare `int(N)`
// positional shorthand as an alias when the spec has no explicit arg of
// this name.
func requiredInt(args map[string]string, name string) (int, error) {
	v, ok := args[name]
	if !ok {
		v, ok = args["int"]
	}
	if !ok {
		return 0, errors.Wrapf(errs.SpecInvalid, "missing required argument %q", name)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(errs.SpecInvalid, "argument %q is not an integer: %q", name, v)
	}
	return n, nil
}

func optionalInt(args map[string]string, name string, def int) (int, error) {
	v, ok := args[name]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(errs.SpecInvalid, "argument %q is not an integer: %q", name, v)
	}
	return n, nil
}

func optionalBool(args map[string]string, name string, def bool) (bool, error) {
	v, ok := args[name]
	if !ok {
		v, ok = args["bool"]
	}
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Wrapf(errs.SpecInvalid, "argument %q is not a bool: %q", name, v)
	}
	return b, nil
}

func optionalString(args map[string]string, name, def string) string {
	if v, ok := args[name]; ok {
		return v
	}
	return def
}

func buildFileExists(args map[string]string) (*Validator, error) {
	path, err := required(args, "path")
	if err != nil {
		return nil, err
	}
	return &Validator{
		Kind:       KindFileExists,
		Name:       fmt.Sprintf("file exists: %s", path),
		FileExists: &FileExistsArgs{Path: path},
	}, nil
}

func buildCanCompile(args map[string]string) (*Validator, error) {
	enabled, err := optionalBool(args, "bool", true)
	if err != nil {
		return nil, err
	}
	return &Validator{
		Kind:       KindCanCompile,
		Name:       "project compiles",
		CanCompile: &CanCompileArgs{Enabled: enabled},
	}, nil
}

func buildTCPListening(args map[string]string) (*Validator, error) {
	port, err := requiredInt(args, "port")
	if err != nil {
		return nil, err
	}
	timeout, err := optionalInt(args, "timeout_ms", 2000)
	if err != nil {
		return nil, err
	}
	return &Validator{
		Kind:         KindTCPListening,
		Name:         fmt.Sprintf("tcp listening on port %d", port),
		TCPListening: &TCPListeningArgs{Port: port, TimeoutMS: timeout},
	}, nil
}

func buildHTTPResponse(args map[string]string) (*Validator, error) {
	method, err := required(args, "method")
	if err != nil {
		return nil, err
	}
	path, err := required(args, "path")
	if err != nil {
		return nil, err
	}
	status, err := requiredInt(args, "status")
	if err != nil {
		return nil, err
	}
	port, err := optionalInt(args, "port", DefaultPort)
	if err != nil {
		return nil, err
	}
	body, hasBody := args["body_contains"]
	return &Validator{
		Kind: KindHTTPResponse,
		Name: fmt.Sprintf("%s %s returns %d", strings.ToUpper(method), path, status),
		HTTPResponse: &HTTPResponseArgs{
			Method: strings.ToUpper(method), Path: path, Status: status,
			BodyContains: body, HasBody: hasBody, Port: port,
		},
	}, nil
}

func buildHTTPGetFile(args map[string]string) (*Validator, error) {
	path, err := required(args, "path")
	if err != nil {
		return nil, err
	}
	file, err := required(args, "file")
	if err != nil {
		return nil, err
	}
	port, err := optionalInt(args, "port", DefaultPort)
	if err != nil {
		return nil, err
	}
	return &Validator{
		Kind:        KindHTTPGetFile,
		Name:        fmt.Sprintf("GET %s matches file %s", path, file),
		HTTPGetFile: &HTTPGetFileArgs{Path: path, File: file, Port: port},
	}, nil
}

func buildHTTPGetCompressed(args map[string]string) (*Validator, error) {
	path, err := required(args, "path")
	if err != nil {
		return nil, err
	}
	encoding, err := required(args, "encoding")
	if err != nil {
		return nil, err
	}
	if encoding != "gzip" && encoding != "deflate" {
		return nil, errors.Wrapf(errs.SpecInvalid, "unsupported encoding %q, want gzip or deflate", encoding)
	}
	port, err := optionalInt(args, "port", DefaultPort)
	if err != nil {
		return nil, err
	}
	return &Validator{
		Kind: KindHTTPGetCompressed,
		Name: fmt.Sprintf("GET %s is %s-compressed", path, encoding),
		HTTPGetCompressed: &HTTPGetCompressedArgs{
			Path: path, Encoding: encoding, Port: port,
		},
	}, nil
}

func buildJSONResponse(args map[string]string) (*Validator, error) {
	path, err := required(args, "path")
	if err != nil {
		return nil, err
	}
	pointer, err := required(args, "pointer")
	if err != nil {
		return nil, err
	}
	expected, err := required(args, "expected")
	if err != nil {
		return nil, err
	}
	port, err := optionalInt(args, "port", DefaultPort)
	if err != nil {
		return nil, err
	}
	return &Validator{
		Kind: KindJSONResponse,
		Name: fmt.Sprintf("GET %s %s equals %q", path, pointer, expected),
		JSONResponse: &JSONResponseArgs{
			Path: path, Pointer: pointer, Expected: expected, Port: port,
		},
	}, nil
}

func buildConcurrentRequests(args map[string]string) (*Validator, error) {
	num, err := requiredInt(args, "num")
	if err != nil {
		return nil, err
	}
	path, err := required(args, "path")
	if err != nil {
		return nil, err
	}
	status, err := requiredInt(args, "expected_status")
	if err != nil {
		return nil, err
	}
	port, err := optionalInt(args, "port", DefaultPort)
	if err != nil {
		return nil, err
	}
	return &Validator{
		Kind: KindConcurrentRequests,
		Name: fmt.Sprintf("%d concurrent requests to %s return %d", num, path, status),
		ConcurrentRequests: &ConcurrentRequestsArgs{
			Num: num, Path: path, ExpectedStatus: status, Port: port,
		},
	}, nil
}

func buildRateLimit(args map[string]string) (*Validator, error) {
	path, err := required(args, "path")
	if err != nil {
		return nil, err
	}
	allowed, err := requiredInt(args, "allowed")
	if err != nil {
		return nil, err
	}
	burst, err := requiredInt(args, "burst")
	if err != nil {
		return nil, err
	}
	port, err := optionalInt(args, "port", DefaultPort)
	if err != nil {
		return nil, err
	}
	return &Validator{
		Kind: KindRateLimit,
		Name: fmt.Sprintf("rate limit on %s allows burst of %d at %d/s", path, burst, allowed),
		RateLimit: &RateLimitArgs{
			Path: path, Allowed: allowed, Burst: burst, Port: port,
		},
	}, nil
}

func buildGracefulShutdown(args map[string]string) (*Validator, error) {
	binary, err := required(args, "binary")
	if err != nil {
		return nil, err
	}
	timeout, err := requiredInt(args, "timeout_ms")
	if err != nil {
		return nil, err
	}
	return &Validator{
		Kind: KindGracefulShutdown,
		Name: fmt.Sprintf("%s shuts down gracefully within %dms", binary, timeout),
		GracefulShutdown: &GracefulShutdownArgs{
			Binary: binary, TimeoutMS: timeout,
		},
	}, nil
}

func buildRaceDetector(args map[string]string) (*Validator, error) {
	dir := optionalString(args, "source_dir", ".")
	return &Validator{
		Kind:         KindRaceDetector,
		Name:         fmt.Sprintf("race detector passes for %s", dir),
		RaceDetector: &RaceDetectorArgs{SourceDir: dir},
	}, nil
}

func buildGoCompile(args map[string]string) (*Validator, error) {
	dir := optionalString(args, "source_dir", ".")
	return &Validator{
		Kind:      KindGoCompile,
		Name:      fmt.Sprintf("go build passes for %s", dir),
		GoCompile: &GoCompileArgs{SourceDir: dir},
	}, nil
}

func buildJobQueueScenario(args map[string]string) (*Validator, error) {
	binary, err := required(args, "binary")
	if err != nil {
		return nil, err
	}
	submit, err := requiredInt(args, "submit_count")
	if err != nil {
		return nil, err
	}
	workers, err := requiredInt(args, "worker_count")
	if err != nil {
		return nil, err
	}
	return &Validator{
		Kind: KindJobQueueScenario,
		Name: fmt.Sprintf("%s completes job queue scenario (%d jobs, %d workers)", binary, submit, workers),
		JobQueueScenario: &JobQueueScenarioArgs{
			Binary: binary, SubmitCount: submit, WorkerCount: workers,
		},
	}, nil
}

func buildWorkerPoolScenario(args map[string]string) (*Validator, error) {
	binary, err := required(args, "binary")
	if err != nil {
		return nil, err
	}
	workers, err := requiredInt(args, "worker_count")
	if err != nil {
		return nil, err
	}
	tasks, err := requiredInt(args, "task_count")
	if err != nil {
		return nil, err
	}
	return &Validator{
		Kind: KindWorkerPoolScenario,
		Name: fmt.Sprintf("%s completes worker pool scenario (%d workers, %d tasks)", binary, workers, tasks),
		WorkerPoolScenario: &WorkerPoolScenarioArgs{
			Binary: binary, WorkerCount: workers, TaskCount: tasks,
		},
	}, nil
}
