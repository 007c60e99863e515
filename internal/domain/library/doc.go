/*
Package library keeps the catalog of experiences installed on the Station.

Each wrapper contributes the experiences it found in its own manifest;
the library merges them, answers lookups for inbound launch commands and
tracks which experience is currently running.

Features:
  - Per-wrapper replacement on refresh
  - Copy-on-read lookups
  - Running marker (at most one experience at a time)
  - Statistics for the diagnostics API
*/
package library
