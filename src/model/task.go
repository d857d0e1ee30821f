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

import "fmt"

type TaskStatus string

const (
	TaskNotInProgress TaskStatus = "not_in_progress"
	TaskInProgress    TaskStatus = "in_progress"
	TaskDone          TaskStatus = "done"
	TaskPending       TaskStatus = "pending"
	TaskApproved      TaskStatus = "approved"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskNotInProgress, TaskInProgress, TaskDone, TaskPending, TaskApproved:
		return true
	}
	return false
}

// String renders the status the way the menu shows it.
func (s TaskStatus) String() string {
	switch s {
	case TaskNotInProgress:
		return "Not In Progress"
	case TaskInProgress:
		return "In Progress"
	case TaskDone:
		return "Done"
	case TaskPending:
		return "Pending"
	case TaskApproved:
		return "Approved"
	}
	return string(s)
}

const (
	imagePrefix = "git-trainer"
)

type Task struct {
	ID                  int64
	Name                string
	WorkName            string // derives image and container names
	Description         string
	ExtendedDescription string
	Status              TaskStatus // per-user, filled by the user view
	Attempts            []Attempt  // per-user, filled by the user view
}

// ImageName is the image built from the task's build context.
func (t Task) ImageName() string {
	return fmt.Sprintf("%s_%s", imagePrefix, t.WorkName)
}

// ContainerName is unique per (task, user) so two operators never share a container.
func (t Task) ContainerName(username string) string {
	return fmt.Sprintf("%s_%s_%s", imagePrefix, t.WorkName, username)
}
