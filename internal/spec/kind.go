package spec

// Kind is the closed set of validator kinds the engine recognizes.
// The parser's builder table and the catalogue's switch over Kind each name
// every kind; Go has no native sum type, so the compiler does not check
// either for exhaustiveness.
type Kind string

const (
	KindFileExists         Kind = "file_exists"
	KindCanCompile         Kind = "can_compile"
	KindTCPListening       Kind = "tcp_listening"
	KindHTTPResponse       Kind = "http_response"
	KindHTTPGetFile        Kind = "http_get_file"
	KindHTTPGetCompressed  Kind = "http_get_compressed"
	KindJSONResponse       Kind = "json_response"
	KindConcurrentRequests Kind = "concurrent_requests"
	KindRateLimit          Kind = "rate_limit"
	KindGracefulShutdown   Kind = "graceful_shutdown"
	KindRaceDetector       Kind = "race_detector"
	KindGoCompile          Kind = "go_compile"
	KindJobQueueScenario   Kind = "job_queue_scenario"
	KindWorkerPoolScenario Kind = "worker_pool_scenario"
)

// DefaultPort is used by every network validator whose port argument is
// optional. 8000 is what the exercises' starter servers bind by default,
// so the whole family shares it.
const DefaultPort = 8000

// Validator is a parsed validator instance: a tagged union realized in Go
// as a struct of mutually
// exclusive optional argument blocks rather than an interface hierarchy, so
// a single switch over Kind can be exhaustively checked by a linter/reviewer.
type Validator struct {
	Kind Kind
	Name string

	FileExists         *FileExistsArgs
	CanCompile         *CanCompileArgs
	TCPListening       *TCPListeningArgs
	HTTPResponse       *HTTPResponseArgs
	HTTPGetFile        *HTTPGetFileArgs
	HTTPGetCompressed  *HTTPGetCompressedArgs
	JSONResponse       *JSONResponseArgs
	ConcurrentRequests *ConcurrentRequestsArgs
	RateLimit          *RateLimitArgs
	GracefulShutdown   *GracefulShutdownArgs
	RaceDetector       *RaceDetectorArgs
	GoCompile          *GoCompileArgs
	JobQueueScenario   *JobQueueScenarioArgs
	WorkerPoolScenario *WorkerPoolScenarioArgs
}

type FileExistsArgs struct {
	Path string
}

type CanCompileArgs struct {
	Enabled bool
}

type TCPListeningArgs struct {
	Port      int
	TimeoutMS int
}

type HTTPResponseArgs struct {
	Method       string
	Path         string
	Status       int
	BodyContains string
	HasBody      bool
	Port         int
}

type HTTPGetFileArgs struct {
	Path string
	File string
	Port int
}

type HTTPGetCompressedArgs struct {
	Path     string
	Encoding string
	Port     int
}

type JSONResponseArgs struct {
	Path     string
	Pointer  string
	Expected string
	Port     int
}

type ConcurrentRequestsArgs struct {
	Num            int
	Path           string
	ExpectedStatus int
	Port           int
}

type RateLimitArgs struct {
	Path    string
	Allowed int
	Burst   int
	Port    int
}

type GracefulShutdownArgs struct {
	Binary    string
	TimeoutMS int
}

type RaceDetectorArgs struct {
	SourceDir string
}

type GoCompileArgs struct {
	SourceDir string
}

type JobQueueScenarioArgs struct {
	Binary      string
	SubmitCount int
	WorkerCount int
}

type WorkerPoolScenarioArgs struct {
	Binary      string
	WorkerCount int
	TaskCount   int
}

// Parallelizable reports whether the dispatcher may run this validator
// concurrently with others: no port, no workspace writes, no Docker use.
// Only file_exists qualifies today.
func (v *Validator) Parallelizable() bool {
	switch v.Kind {
	case KindFileExists:
		return true
	default:
		return false
	}
}
