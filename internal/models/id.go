// Package models defines the gorm models backing the correlation store.
package models

import "github.com/google/uuid"

func newID() string { return uuid.NewString() }
