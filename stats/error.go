package stats

import mcerr "github.com/sabouaram/memkit/errors"

const (
	ErrorStatsFileWrite mcerr.CodeError = iota + mcerr.MinPkgStats
)

func init() {
	mcerr.RegisterIdFctMessage(ErrorStatsFileWrite, getMessage)
}

func getMessage(code mcerr.CodeError) string {
	switch code {
	case ErrorStatsFileWrite:
		return "failed to write stats output file"
	}
	return ""
}
