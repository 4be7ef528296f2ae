package model

// Package model defines domain data structures shared by the synchronization
// subsystem and its consumers: canonical task updates, client-held task
// entries, task and connection status enums.
