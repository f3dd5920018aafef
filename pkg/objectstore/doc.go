// Package objectstore provides a convention-based object mapper for
// S3-compatible storage: strongly-typed, JSON-serializable records are stored
// at deterministic object paths derived from a per-type folder template, an
// owner identifier, and a record key.
//
// The package exposes a generic Service that bridges typed records and a
// byte-level Repository. Repository implementations (S3, in-memory, Postgres)
// are provided under the storage subpackages and satisfy one shared contract,
// so the in-memory backend can stand in for S3 in tests without touching
// service code.
//
// # Path Convention
//
// Each service is configured with a folder template holding at most one owner
// placeholder ("{0}"). Collection-style services (IncludesFileName false)
// store one object per record at "<folder>/<key>.json"; profile-style
// services (IncludesFileName true) resolve every key to the template path
// itself, giving one object per owner. Owners and keys are not escaped or
// validated; callers must supply path-safe identifiers.
package objectstore
