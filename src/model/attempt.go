// Copyright (c) 2026 Khaled Abbas
//
// This source code is licensed under the Business Source License 1.1.
//
// Change Date: 4 years after the first public release of this version.
// Change License: MIT
//
// On the Change Date, this version of the code automatically converts
// to the MIT License. Prior to that date, use is subject to the
// Additional Use Grant. See the LICENSE file for details.

package model

import "time"

type TestOutcome string

const (
	TestPassed      TestOutcome = "passed"
	TestFailed      TestOutcome = "failed"
	TestNotExecuted TestOutcome = "not_executed"
)

func (o TestOutcome) Valid() bool {
	return o == TestPassed || o == TestFailed || o == TestNotExecuted
}

const displayLayout = "02.01.2006 15:04:05"

type Attempt struct {
	ID        int64
	UserID    int64
	TaskID    int64
	Timestamp time.Time    // stored as an instant
	Tests     []TestResult // execution order
}

// LocalTime renders the attempt instant in the operator's local zone.
func (a Attempt) LocalTime() string {
	return a.Timestamp.In(time.Local).Format(displayLayout)
}

// Passed reports whether every test in the attempt passed.
func (a Attempt) Passed() bool {
	if len(a.Tests) == 0 {
		return false
	}
	for _, t := range a.Tests {
		if t.Result != TestPassed {
			return false
		}
	}
	return true
}

type TestResult struct {
	ID          int64
	AttemptID   int64
	Description string
	Result      TestOutcome
}

// FailFastHolds checks that nothing after the first failure was executed.
func FailFastHolds(tests []TestResult) bool {
	failed := false
	for _, t := range tests {
		if failed && t.Result != TestNotExecuted {
			return false
		}
		if t.Result == TestFailed {
			failed = true
		}
	}
	return true
}
