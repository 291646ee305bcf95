// Package repository holds what every notification store backend shares.
package repository

import "errors"

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrReminderAlreadySent  = errors.New("reminder already marked as sent")
)
