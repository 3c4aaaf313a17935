// Copyright (c) 2020 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"time"

	"github.com/sirupsen/logrus" // OK for logrus.Fatal
)

// ErrorSeverity tells the severity type
type ErrorSeverity int32

const (
	// ErrorSeverityUnspecified severity unspecified
	ErrorSeverityUnspecified ErrorSeverity = 0
	// ErrorSeverityNotice severity notice
	ErrorSeverityNotice ErrorSeverity = 1
	// ErrorSeverityWarning severity warning
	ErrorSeverityWarning ErrorSeverity = 2
	// ErrorSeverityError severity error
	ErrorSeverityError ErrorSeverity = 3
)

// ErrorDescription contains error details
type ErrorDescription struct {
	Error         string
	ErrorTime     time.Time
	ErrorSeverity ErrorSeverity
}

// SetErrorDescription sync ErrorDescription with provided one
// it sets ErrorSeverityError in case of unspecified ErrorSeverity
// it sets ErrorTime to time.Now() in case of no time provided
func (edPtr *ErrorDescription) SetErrorDescription(errDescription ErrorDescription) {
	if errDescription.Error == "" {
		logrus.Fatal("Missing error string")
	}
	*edPtr = errDescription
	if edPtr.ErrorSeverity == ErrorSeverityUnspecified {
		edPtr.ErrorSeverity = ErrorSeverityError
	}
	if edPtr.ErrorTime.IsZero() {
		edPtr.ErrorTime = time.Now()
	}
}

// ErrorAndTime is used by the status objects the agents publish
type ErrorAndTime struct {
	ErrorDescription
}

// SetErrorNow uses the current time
func (etPtr *ErrorAndTime) SetErrorNow(errStr string) {
	etPtr.SetError(errStr, time.Now())
}

// SetError is when time is specified
func (etPtr *ErrorAndTime) SetError(errStr string, errorTime time.Time) {
	description := ErrorDescription{
		Error:     errStr,
		ErrorTime: errorTime,
	}
	etPtr.SetErrorDescription(description)
}

// ClearError removes it
func (etPtr *ErrorAndTime) ClearError() {
	etPtr.Error = ""
	etPtr.ErrorTime = time.Time{}
	etPtr.ErrorSeverity = ErrorSeverityUnspecified
}

// HasError returns true if there is an error
func (etPtr *ErrorAndTime) HasError() bool {
	return etPtr.Error != ""
}
