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

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTaskNaming(t *testing.T) {
	task := Task{WorkName: "hello-world"}
	assert.Equal(t, "git-trainer_hello-world", task.ImageName())
	assert.Equal(t, "git-trainer_hello-world_ann", task.ContainerName("ann"))
	assert.NotEqual(t, task.ContainerName("ann"), task.ContainerName("bob"))
}

func TestNormalizeUsername(t *testing.T) {
	assert.Equal(t, "Ann-Lee", NormalizeUsername("Ann Lee"))
	assert.Equal(t, "root", NormalizeUsername(" root "))
}

func TestFailFastHolds(t *testing.T) {
	cases := []struct {
		name  string
		tests []TestOutcome
		want  bool
	}{
		{"all passed", []TestOutcome{TestPassed, TestPassed}, true},
		{"fail then skipped", []TestOutcome{TestPassed, TestFailed, TestNotExecuted}, true},
		{"ran around failure", []TestOutcome{TestFailed, TestPassed}, false},
		{"empty", nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var results []TestResult
			for _, o := range tc.tests {
				results = append(results, TestResult{Result: o})
			}
			assert.Equal(t, tc.want, FailFastHolds(results))
		})
	}
}

func TestAttemptPassedAndLocalTime(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 5, 0, time.UTC)
	a := Attempt{Timestamp: ts, Tests: []TestResult{{Result: TestPassed}}}
	assert.True(t, a.Passed())
	assert.Equal(t, ts.In(time.Local).Format("02.01.2006 15:04:05"), a.LocalTime())

	a.Tests = append(a.Tests, TestResult{Result: TestFailed})
	assert.False(t, a.Passed())
	assert.False(t, Attempt{}.Passed())
}

func TestTaskStatusString(t *testing.T) {
	assert.Equal(t, "Not In Progress", TaskNotInProgress.String())
	assert.True(t, TaskApproved.Valid())
	assert.False(t, TaskStatus("bogus").Valid())
}
