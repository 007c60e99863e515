/*
Package manifest reads the install manifests each wrapper variant
collects experiences from:

  - OpenVR .vrmanifest JSON files (Revive and custom applications)
  - Steam library appmanifest_*.acf files
  - the Station's YAML (or TOML) catalog of embedded experiences

Every reader exposes the same lookups: ListEntries, NameForKey and
ImagePathForKey. A missing manifest is reported as ErrManifestNotFound
so callers can treat it as an empty install rather than a fault.
*/
package manifest
