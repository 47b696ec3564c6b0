package envconfig

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

var (
	// Set via SPM_ORIGINS in the environment
	AllowOrigins []string
	// Set via SPM_DEBUG in the environment
	Debug bool
	// Set via SPM_TRACE in the environment
	Trace bool
	// Set via SPM_NUM_PARALLEL in the environment
	NumParallel int
)

var ErrInvalidHostPort = errors.New("invalid port specified in SPM_HOST")

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"SPM_DEBUG":        {"SPM_DEBUG", Debug, "Show additional debug information (e.g. SPM_DEBUG=1)"},
		"SPM_TRACE":        {"SPM_TRACE", Trace, "Log per-merge trace information"},
		"SPM_HOST":         {"SPM_HOST", "", "IP Address for the tokenizer server (default 127.0.0.1:11533)"},
		"SPM_NUM_PARALLEL": {"SPM_NUM_PARALLEL", NumParallel, "Maximum number of parallel tokenize requests per batch (default 4)"},
		"SPM_ORIGINS":      {"SPM_ORIGINS", AllowOrigins, "A comma separated list of allowed origins"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

var defaultAllowOrigins = []string{
	"localhost",
	"127.0.0.1",
	"0.0.0.0",
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func init() {
	NumParallel = 4

	LoadConfig()
}

func LoadConfig() {
	if debug := clean("SPM_DEBUG"); debug != "" {
		if d, err := strconv.ParseBool(debug); err == nil {
			Debug = d
		}
	}

	if trace := clean("SPM_TRACE"); trace != "" {
		if tr, err := strconv.ParseBool(trace); err == nil {
			Trace = tr
		}
	}

	if parallel := clean("SPM_NUM_PARALLEL"); parallel != "" {
		if p, err := strconv.Atoi(parallel); err == nil && p > 0 {
			NumParallel = p
		}
	}

	AllowOrigins = nil
	if origins := clean("SPM_ORIGINS"); origins != "" {
		AllowOrigins = strings.Split(origins, ",")
	}

	for _, allowOrigin := range defaultAllowOrigins {
		AllowOrigins = append(AllowOrigins,
			fmt.Sprintf("http://%s", allowOrigin),
			fmt.Sprintf("https://%s", allowOrigin),
			fmt.Sprintf("http://%s:*", allowOrigin),
			fmt.Sprintf("https://%s:*", allowOrigin),
		)
	}
}

// Host returns the bind address for the server, read from SPM_HOST.
func Host() (string, error) {
	host := clean("SPM_HOST")
	if host == "" {
		return "127.0.0.1:11533", nil
	}

	if addr, port, err := net.SplitHostPort(host); err == nil {
		if p, err := strconv.Atoi(port); err != nil || p < 0 || p > 65535 {
			return "", ErrInvalidHostPort
		}
		return net.JoinHostPort(addr, port), nil
	}

	// No port in the value: bare hostname or IPv6 literal.
	return net.JoinHostPort(strings.Trim(host, "[]"), "11533"), nil
}
