package main

import (
	"errors"

	"piscale/pkg/bigfloat"
	"piscale/pkg/comm"
	"piscale/pkg/harness"
	"piscale/pkg/series"
)

// Exit statuses. Each failure kind gets its own.
const (
	exitOK          = 0
	exitFailure     = 1
	exitMessaging   = 3
	exitMalformed   = 4
	exitPrecision   = 5
	exitDivByZero   = 6
	exitUnknownAlg  = 7
	exitOverWorkers = 8
)

var exitCodes = []struct {
	err  error
	code int
}{
	{bigfloat.ErrMalformedRecord, exitMalformed},
	{bigfloat.ErrPrecisionMismatch, exitPrecision},
	{bigfloat.ErrDivisionByZero, exitDivByZero},
	{series.ErrUnknownAlgorithm, exitUnknownAlg},
	{harness.ErrWorkerCountExceedsWorkload, exitOverWorkers},
	{comm.ErrMessaging, exitMessaging},
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	for _, e := range exitCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return exitFailure
}
