package model

// Package model defines domain data structures shared across the app: download
// tasks, status enums, task events, and resolver format candidates. Structures
// carry explicit state transitions and publish read-only snapshots.
