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
	"strings"
	"time"
)

type User struct {
	ID        int64
	Username  string
	CreatedAt time.Time
}

// UserTaskStatus is one (user, task) progress row.
type UserTaskStatus struct {
	UserID int64
	TaskID int64
	Status TaskStatus
}

// NormalizeUsername makes an OS account name safe for container names.
func NormalizeUsername(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "-")
}
