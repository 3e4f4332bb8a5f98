/*
Package log provides the global zerolog-based logger for Burrow.

Components obtain child loggers via WithComponent, WithRepo, WithRepoPair
and WithChangeset so every line carries the repository and changeset
context required by the error-reporting policy.
*/
package log
