// Package config defines configuration structures for the workflow engine.
//
// Configuration follows a single pattern throughout: plain structs with
// JSON/YAML tags, Default* constructors returning sensible values, and Merge
// methods for layering file-based configuration over defaults. Config values
// are used only during construction — engine components receive them as
// explicit constructor parameters and never read ambient global state.
//
// Observer fields are strings resolved at runtime through the observability
// registry, enabling file-based configuration to select observers by name.
package config
