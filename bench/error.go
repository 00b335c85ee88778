package bench

import mcerr "github.com/sabouaram/memkit/errors"

const (
	ErrorInvalidConcurrency mcerr.CodeError = iota + mcerr.MinPkgBench
	ErrorNoServers
)

func init() {
	mcerr.RegisterIdFctMessage(ErrorInvalidConcurrency, getMessage)
	mcerr.RegisterIdFctMessage(ErrorNoServers, getMessage)
}

func getMessage(code mcerr.CodeError) string {
	switch code {
	case ErrorInvalidConcurrency:
		return "concurrency must be at least the thread count"
	case ErrorNoServers:
		return "no servers configured for the benchmark run"
	}
	return ""
}
