// Package config defines the configuration for a BallotGuard server.
//
// Regardless of how BallotGuard is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. The command line
// additionally reads, in increasing order of precedence, the following
// sources:
//
//  [datadir]/ballotguard.toml // (or .yaml, .json) with [scorer], [ledger] and [events] sections
//  .env                       // dotenv file in the working directory
//  BALLOTGUARD_*              // environment, eg. BALLOTGUARD_LEDGER_ADDR
//  --flags
//
// The engine also reads [datadir]/roster.json, which replaces Roster and
// Credentials when present.
//
// Config files do not preserve the case of map keys, so a [credentials] table
// comes back with lower-cased identities. The command line calls
// NormalizeCredentials after loading to restore the roster spelling.
package config
